package config

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// LedgerConfig holds the tunables of the ledger engine.
type LedgerConfig struct {
	UndoWindow     time.Duration
	MonthlyPeriods int
	WeeklyPeriods  int
	TopDebtors     int
	Currency       string
	BusinessName   string
	Location       *time.Location
}

// TZ is the configured location, UTC when unset.
func (c LedgerConfig) TZ() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Init points viper at the .env file and binds the environment.
func Init() error {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	binds := map[string]string{
		"database.host":        "DATABASE_HOST",
		"database.port":        "DATABASE_PORT",
		"database.user":        "DATABASE_USER",
		"database.password":    "DATABASE_PASSWORD",
		"database.name":        "DATABASE_NAME",
		"database.ssl_mode":    "DATABASE_SSL_MODE",
		"redis.host":           "REDIS_HOST",
		"redis.port":           "REDIS_PORT",
		"redis.password":       "REDIS_PASSWORD",
		"redis.db":             "REDIS_DB",
		"jwt.secret_key":       "JWT_SECRET_KEY",
		"ledger.undo_window":   "LEDGER_UNDO_WINDOW",
		"ledger.business_name": "LEDGER_BUSINESS_NAME",
		"ledger.timezone":      "LEDGER_TIMEZONE",
		"server.port":          "PORT",
		"log.level":            "LOG_LEVEL",
		"log.pretty":           "LOG_PRETTY",
	}
	for key, env := range binds {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	return viper.ReadInConfig()
}

// LoadLedgerConfig returns ledger configuration with defaults. An unknown
// timezone is logged and replaced by UTC.
func LoadLedgerConfig(logger zerolog.Logger) *LedgerConfig {
	viper.SetDefault("ledger.undo_window", 8*time.Second)
	viper.SetDefault("ledger.monthly_periods", 6)
	viper.SetDefault("ledger.weekly_periods", 8)
	viper.SetDefault("ledger.top_debtors", 5)
	viper.SetDefault("ledger.currency", "INR")
	viper.SetDefault("ledger.business_name", "Udhaari App")
	viper.SetDefault("ledger.timezone", "Asia/Kolkata")

	tz := viper.GetString("ledger.timezone")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", tz).Msg("Unknown ledger timezone, using UTC")
		loc = time.UTC
	}

	return &LedgerConfig{
		UndoWindow:     viper.GetDuration("ledger.undo_window"),
		MonthlyPeriods: viper.GetInt("ledger.monthly_periods"),
		WeeklyPeriods:  viper.GetInt("ledger.weekly_periods"),
		TopDebtors:     viper.GetInt("ledger.top_debtors"),
		Currency:       viper.GetString("ledger.currency"),
		BusinessName:   viper.GetString("ledger.business_name"),
		Location:       loc,
	}
}

// DefaultLedgerConfig is used by tests and embedded callers that skip viper.
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		UndoWindow:     8 * time.Second,
		MonthlyPeriods: 6,
		WeeklyPeriods:  8,
		TopDebtors:     5,
		Currency:       "INR",
		BusinessName:   "Udhaari App",
		Location:       time.UTC,
	}
}

// LoadServerConfig returns HTTP server configuration with defaults
func LoadServerConfig() *ServerConfig {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.allowed_origins", []string{"https://*", "http://*"})

	return &ServerConfig{
		Port:            viper.GetString("server.port"),
		ReadTimeout:     viper.GetDuration("server.read_timeout"),
		WriteTimeout:    viper.GetDuration("server.write_timeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		AllowedOrigins:  viper.GetStringSlice("server.allowed_origins"),
	}
}
