package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Notifier carries "something changed" signals between writers and live subscribers.
// Payloads are not delivered: subscribers re-read a full snapshot on every signal.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one registration on a topic. Close is idempotent.
type Subscription interface {
	Events() <-chan struct{}
	Close() error
}

func CustomersTopic(ownerID string) string {
	return fmt.Sprintf("khata:%s:customers", ownerID)
}

func CustomerTopic(ownerID, customerID string) string {
	return fmt.Sprintf("khata:%s:customer:%s", ownerID, customerID)
}

// publishChange signals both the customer list and the customer detail topics.
// The mutation has already committed, so a failed publish is only logged.
func publishChange(ctx context.Context, n Notifier, logger zerolog.Logger, ownerID, customerID string) {
	if n == nil {
		return
	}
	topics := []string{CustomersTopic(ownerID)}
	if customerID != "" {
		topics = append(topics, CustomerTopic(ownerID, customerID))
	}
	for _, topic := range topics {
		if err := n.Publish(ctx, topic); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("publish change notification")
		}
	}
}

// signal does a coalescing send: a pending signal already means "re-read".
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// ─── In-process notifier ────────────────────────────────────────────────────

type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[*localSub]struct{})}
}

type localSub struct {
	n      *LocalNotifier
	topic  string
	events chan struct{}
	once   sync.Once
}

func (s *localSub) Events() <-chan struct{} { return s.events }

func (s *localSub) Close() error {
	s.once.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		delete(s.n.subs[s.topic], s)
		if len(s.n.subs[s.topic]) == 0 {
			delete(s.n.subs, s.topic)
		}
		close(s.events)
	})
	return nil
}

func (n *LocalNotifier) Publish(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs[topic] {
		signal(s.events)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, topic string) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := &localSub{n: n, topic: topic, events: make(chan struct{}, 1)}
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[*localSub]struct{})
	}
	n.subs[topic][s] = struct{}{}
	return s, nil
}

// ─── Redis Pub/Sub notifier ─────────────────────────────────────────────────

// RedisNotifier fans change signals out across server instances.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(redis *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: redis}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	return n.redis.Publish(ctx, topic, "changed").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := n.redis.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &redisSub{ps: ps, events: make(chan struct{}, 1)}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps     *redis.PubSub
	events chan struct{}
	once   sync.Once
}

func (s *redisSub) pump() {
	defer close(s.events)
	for range s.ps.Channel() {
		signal(s.events)
	}
}

func (s *redisSub) Events() <-chan struct{} { return s.events }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
