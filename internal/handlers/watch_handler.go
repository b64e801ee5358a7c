package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is one frame pushed to a watcher.
type wsMessage struct {
	Type  string `json:"type"` // snapshot | error
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// WatchHandler streams live snapshots over websockets.
type WatchHandler struct {
	watcher *services.Watcher
	logger  zerolog.Logger
}

func NewWatchHandler(watcher *services.Watcher, logger zerolog.Logger) *WatchHandler {
	return &WatchHandler{
		watcher: watcher,
		logger:  logger.With().Str("handler", "watch").Logger(),
	}
}

func (h *WatchHandler) Customers(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	h.serve(w, r, func(ctx context.Context, push func(wsMessage)) (func(), error) {
		return h.watcher.WatchCustomers(ctx, ownerID, func(s *services.CustomersSnapshot, err error) {
			push(toMessage(s, err))
		})
	})
}

func (h *WatchHandler) Customer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	customerID := chi.URLParam(r, "customerId")
	h.serve(w, r, func(ctx context.Context, push func(wsMessage)) (func(), error) {
		return h.watcher.WatchCustomer(ctx, ownerID, customerID, func(s *services.CustomerSnapshot, err error) {
			push(toMessage(s, err))
		})
	})
}

func toMessage[T any](snapshot *T, err error) wsMessage {
	if err != nil {
		msg := "snapshot failed"
		if errors.Is(err, models.ErrNotFound) {
			msg = "not found"
		}
		return wsMessage{Type: "error", Error: msg}
	}
	return wsMessage{Type: "snapshot", Data: snapshot}
}

type subscribeFunc func(ctx context.Context, push func(wsMessage)) (func(), error)

func (h *WatchHandler) serve(w http.ResponseWriter, r *http.Request, subscribe subscribeFunc) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshots are full state, so only the newest unsent one matters.
	out := make(chan wsMessage, 1)
	push := func(m wsMessage) {
		select {
		case out <- m:
		default:
			select {
			case <-out:
			default:
			}
			out <- m
		}
	}

	stop, err := subscribe(ctx, push)
	if err != nil {
		h.logger.Error().Err(err).Msg("watch subscribe")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer stop()

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, out)
}

// readPump discards client frames and cancels the watch when the peer goes away.
func (h *WatchHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("watch connection closed")
			}
			return
		}
	}
}

func (h *WatchHandler) writePump(ctx context.Context, conn *websocket.Conn, out <-chan wsMessage) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case m := <-out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
