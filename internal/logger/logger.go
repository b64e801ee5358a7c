package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Level  string
	Pretty bool
}

// FromViper reads log.level and log.pretty.
func FromViper() Config {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
	return Config{
		Level:  viper.GetString("log.level"),
		Pretty: viper.GetBool("log.pretty"),
	}
}

func New(config Config) zerolog.Logger {
	return NewWithWriter(config, os.Stdout)
}

func NewWithWriter(config Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	if config.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "khata").
		Logger()
}
