package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadLedgerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg := LoadLedgerConfig(zerolog.Nop())
		assert.Equal(t, 8*time.Second, cfg.UndoWindow)
		assert.Equal(t, 6, cfg.MonthlyPeriods)
		assert.Equal(t, 8, cfg.WeeklyPeriods)
		assert.Equal(t, "INR", cfg.Currency)
		assert.NotNil(t, cfg.Location)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("ledger.undo_window", "3s")
		viper.Set("ledger.timezone", "not/a_zone")
		var buf bytes.Buffer
		cfg := LoadLedgerConfig(zerolog.New(&buf))
		assert.Equal(t, 3*time.Second, cfg.UndoWindow)
		assert.Equal(t, time.UTC, cfg.Location)
		assert.Contains(t, buf.String(), `"level":"warn"`)
		assert.Contains(t, buf.String(), "not/a_zone")
	})
}

func TestLoadServerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	viper.Set("server.port", "9090")

	cfg := LoadServerConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}
