package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const sampleConfig = `{
	"feed": {
		"marketDataUrl": "wss://stream.example/v2/iex",
		"orderUpdatesUrl": "wss://paper.example/stream",
		"trades": ["AAA", "BBB"],
		"quotes": ["AAA"],
		"backoffMin": "250ms",
		"backoffMax": "5s",
		"maxReconnectAttempts": 8,
		"pingInterval": "10s"
	},
	"broker": {"restUrl": "https://paper.example/", "seedPositions": false},
	"risk": {"defaultMaxPosition": 500, "maxPosition": {"AAA": 100}, "orderRateLimit": 10, "orderRateWindow": "1s"},
	"ledger": {"orderRetention": "1h"},
	"submission": {"timeout": "2s", "workers": 2}
}`

func TestParseResolvesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://paper.example", cfg.RESTURL)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffMin)
	assert.Equal(t, 5*time.Second, cfg.BackoffMax)
	assert.Equal(t, 8, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.OrderRetention)
	assert.Equal(t, DefaultEvictInterval, cfg.EvictInterval)
	assert.Equal(t, 2*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 2, cfg.SubmitWorkers)
	assert.Equal(t, DefaultSubmitQueueSize, cfg.SubmitQueueSize)
	assert.Equal(t, DefaultMaxTradeHistory, cfg.MaxTradeHistory)
	assert.False(t, cfg.SeedPositions)
	assert.Equal(t, schema.Quantity(100), cfg.Risk.MaxPosition["AAA"])
	assert.Equal(t, 10, cfg.Risk.OrderRateLimit)
	assert.Equal(t, time.Second, cfg.Risk.OrderRateWindow)
	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Symbols())
}

func TestValidateRejects(t *testing.T) {
	base, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"no market data url": func(c *Config) { c.MarketDataURL = "" },
		"no rest url":        func(c *Config) { c.RESTURL = "" },
		"no channels":        func(c *Config) { c.Trades, c.Quotes = nil, nil },
		"inverted backoff":   func(c *Config) { c.BackoffMax = time.Millisecond },
		"negative attempts":  func(c *Config) { c.MaxReconnectAttempts = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), exception.ErrInvalidConfig)
		})
	}
}

func TestParseBadDuration(t *testing.T) {
	_, err := Parse([]byte(`{"feed":{"backoffMin":"soon"}}`))
	require.Error(t, err)
}

func TestParseBadRiskWindow(t *testing.T) {
	_, err := Parse([]byte(`{"risk":{"orderRateWindow":"fast"}}`))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example/v2/iex", cfg.MarketDataURL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv(EnvKeyID, "")
	t.Setenv(EnvSecretKey, "")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BROKER_KEY_ID=key\nBROKER_SECRET_KEY=secret\n"), 0o600))

	// godotenv does not override variables that are already set, even to "".
	require.NoError(t, os.Unsetenv(EnvKeyID))
	require.NoError(t, os.Unsetenv(EnvSecretKey))

	creds, err := EnvCredentials{Files: []string{path, "/nonexistent/.env"}}.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{KeyID: "key", SecretKey: "secret"}, creds)
}

func TestEnvCredentialsMissing(t *testing.T) {
	t.Setenv(EnvKeyID, "")
	t.Setenv(EnvSecretKey, "")

	_, err := EnvCredentials{}.Credentials()
	require.Error(t, err)
}
