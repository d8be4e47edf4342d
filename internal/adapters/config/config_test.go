package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsentry/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Strategy.Symbols)
	assert.Equal(t, 0.001, cfg.Strategy.TradeSize)
	assert.Equal(t, 60*time.Second, cfg.Strategy.Cadence)
	assert.Equal(t, 50, cfg.Strategy.MAWindow)
	assert.Equal(t, 2.0, cfg.Strategy.RiskReward)
	assert.Equal(t, 10.0, cfg.Strategy.StopBufferTicks)
	assert.Equal(t, 30.0, cfg.Strategy.MaxSpreadTicks)
	assert.True(t, cfg.Strategy.OneTradePerSymbol)
	assert.False(t, cfg.Strategy.LiveTrading)
	assert.Equal(t, 50, cfg.Strategy.LookaheadBars)

	assert.True(t, cfg.Classifier.Enabled)
	assert.True(t, cfg.Classifier.OnlineLearning)
	assert.Equal(t, 0.05, cfg.Classifier.LearningRate)
	assert.Equal(t, 0.55, cfg.Classifier.Threshold)
	assert.Equal(t, int64(20), cfg.Classifier.WarmupSamples)
	assert.Equal(t, "file", cfg.Classifier.Store)
	assert.Equal(t, "./data/classifier_state.json", cfg.Classifier.StoreLocation)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STRATEGY_SYMBOLS", "SOLUSDT,XRPUSDT,ADAUSDT")
	t.Setenv("STRATEGY_CADENCE", "250ms")
	t.Setenv("CLASSIFIER_STORE", "redis")
	t.Setenv("CLASSIFIER_THRESHOLD", "0.7")
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_IDS", "1,2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT", "ADAUSDT"}, cfg.Strategy.Symbols)
	assert.Equal(t, 250*time.Millisecond, cfg.Strategy.Cadence)
	assert.Equal(t, "redis", cfg.Classifier.Store)
	assert.Equal(t, 0.7, cfg.Classifier.Threshold)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.ChatIDs)
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"threshold above one", map[string]string{"CLASSIFIER_THRESHOLD": "1.5"}, "Threshold"},
		{"zero learning rate", map[string]string{"CLASSIFIER_LEARNING_RATE": "0"}, "LearningRate"},
		{"unknown store", map[string]string{"CLASSIFIER_STORE": "s3"}, "Store"},
		{"zero lookahead", map[string]string{"STRATEGY_LOOKAHEAD_BARS": "0"}, "LookaheadBars"},
		{"live trading without keys", map[string]string{"STRATEGY_LIVE_TRADING": "true"}, "EXCHANGE_API_KEY"},
		{"telegram without chats", map[string]string{"TELEGRAM_ENABLED": "true", "TELEGRAM_BOT_TOKEN": "x"}, "TELEGRAM_CHAT_IDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDSNAndAddr(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "gs", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gs sslmode=disable", pg.DSN())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
