package ops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const (
	DefaultBackoffMin       = 500 * time.Millisecond
	DefaultBackoffMax       = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultOrderRetention   = 24 * time.Hour
	DefaultEvictInterval    = time.Minute
	DefaultSubmitTimeout    = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultSubmitWorkers    = 4
	DefaultSubmitQueueSize  = 256
	DefaultEventQueueSize   = 4096
	DefaultMaxTradeHistory  = 100
	DefaultMaxBarHistory    = 500
	DefaultJournalQueueSize = 1024
)

// Duration decodes from a Go duration string such as "1.5s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Feed       FeedConfig       `json:"feed"`
	Broker     BrokerConfig     `json:"broker"`
	Risk       RiskConfig       `json:"risk"`
	Ledger     LedgerConfig     `json:"ledger"`
	Submission SubmissionConfig `json:"submission"`
	Engine     EngineConfig     `json:"engine"`
	Store      StoreConfig      `json:"store"`
	Probe      ProbeConfig      `json:"probe"`
	Profiler   ProfilerConfig   `json:"profiler"`
}

// FeedConfig describes the streaming connections.
type FeedConfig struct {
	MarketDataURL        string   `json:"marketDataUrl"`
	OrderUpdatesURL      string   `json:"orderUpdatesUrl"`
	Bars                 []string `json:"bars"`
	Trades               []string `json:"trades"`
	Quotes               []string `json:"quotes"`
	BackoffMin           Duration `json:"backoffMin"`
	BackoffMax           Duration `json:"backoffMax"`
	MaxReconnectAttempts int      `json:"maxReconnectAttempts"`
	HandshakeTimeout     Duration `json:"handshakeTimeout"`
	PingInterval         Duration `json:"pingInterval"`
	ReadTimeout          Duration `json:"readTimeout"`
}

// BrokerConfig describes the REST endpoint.
type BrokerConfig struct {
	RESTURL        string `json:"restUrl"`
	SeedPositions  *bool  `json:"seedPositions"`
	CheckpointPath string `json:"checkpointPath"`
}

// RiskConfig mirrors risk.Config with durations decoded from strings.
type RiskConfig struct {
	KillSwitch           bool                       `json:"killSwitch"`
	MaxOrderQty          schema.Quantity            `json:"maxOrderQty"`
	OrderRateLimit       int                        `json:"orderRateLimit"`
	OrderRateWindow      Duration                   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64                      `json:"maxPriceDeviationBps"`
	DefaultMaxPosition   schema.Quantity            `json:"defaultMaxPosition"`
	MaxPosition          map[string]schema.Quantity `json:"maxPosition"`
	EnforcePositionLimit bool                       `json:"enforcePositionLimit"`
}

func (rc RiskConfig) resolve() risk.Config {
	return risk.Config{
		KillSwitch:           rc.KillSwitch,
		MaxOrderQty:          rc.MaxOrderQty,
		OrderRateLimit:       rc.OrderRateLimit,
		OrderRateWindow:      time.Duration(rc.OrderRateWindow),
		MaxPriceDeviationBps: rc.MaxPriceDeviationBps,
		DefaultMaxPosition:   rc.DefaultMaxPosition,
		MaxPosition:          rc.MaxPosition,
		EnforcePositionLimit: rc.EnforcePositionLimit,
	}
}

// LedgerConfig tunes ledger retention and market caches.
type LedgerConfig struct {
	OrderRetention  Duration `json:"orderRetention"`
	EvictInterval   Duration `json:"evictInterval"`
	MaxTradeHistory int      `json:"maxTradeHistory"`
	MaxBarHistory   int      `json:"maxBarHistory"`
}

// SubmissionConfig tunes the outbound order path.
type SubmissionConfig struct {
	Timeout   Duration `json:"timeout"`
	Workers   int      `json:"workers"`
	QueueSize int      `json:"queueSize"`
}

// EngineConfig tunes the dispatcher.
type EngineConfig struct {
	EventQueueSize  int      `json:"eventQueueSize"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

// StoreConfig enables the postgres journal when DSN is set.
type StoreConfig struct {
	DSN       string `json:"dsn"`
	QueueSize int    `json:"queueSize"`
}

// ProbeConfig enables the HTTP probe when Addr is set.
type ProbeConfig struct {
	Addr string `json:"addr"`
}

// ProfilerConfig enables continuous profiling when ServerAddress is set.
type ProfilerConfig struct {
	ApplicationName string `json:"applicationName"`
	ServerAddress   string `json:"serverAddress"`
}

// Config is the resolved, immutable runtime configuration.
type Config struct {
	MarketDataURL        string
	OrderUpdatesURL      string
	RESTURL              string
	Bars                 []string
	Trades               []string
	Quotes               []string
	BackoffMin           time.Duration
	BackoffMax           time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	ReadTimeout          time.Duration

	Risk risk.Config

	OrderRetention  time.Duration
	EvictInterval   time.Duration
	MaxTradeHistory int
	MaxBarHistory   int

	SubmitTimeout   time.Duration
	SubmitWorkers   int
	SubmitQueueSize int

	EventQueueSize  int
	ShutdownTimeout time.Duration

	SeedPositions  bool
	CheckpointPath string

	StoreDSN       string
	StoreQueueSize int
	ProbeAddr      string
	Profiler       ProfilerConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Config, error) {
	var fc FileConfig
	if err := sonic.Unmarshal(data, &fc); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg := fc.Resolve()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve applies defaults.
func (fc FileConfig) Resolve() Config {
	seed := true
	if fc.Broker.SeedPositions != nil {
		seed = *fc.Broker.SeedPositions
	}
	return Config{
		MarketDataURL:        fc.Feed.MarketDataURL,
		OrderUpdatesURL:      fc.Feed.OrderUpdatesURL,
		RESTURL:              strings.TrimRight(fc.Broker.RESTURL, "/"),
		Bars:                 fc.Feed.Bars,
		Trades:               fc.Feed.Trades,
		Quotes:               fc.Feed.Quotes,
		BackoffMin:           orDuration(fc.Feed.BackoffMin, DefaultBackoffMin),
		BackoffMax:           orDuration(fc.Feed.BackoffMax, DefaultBackoffMax),
		MaxReconnectAttempts: fc.Feed.MaxReconnectAttempts,
		HandshakeTimeout:     orDuration(fc.Feed.HandshakeTimeout, DefaultHandshakeTimeout),
		PingInterval:         time.Duration(fc.Feed.PingInterval),
		ReadTimeout:          orDuration(fc.Feed.ReadTimeout, 3*time.Duration(fc.Feed.PingInterval)),
		Risk:                 fc.Risk.resolve(),
		OrderRetention:       orDuration(fc.Ledger.OrderRetention, DefaultOrderRetention),
		EvictInterval:        orDuration(fc.Ledger.EvictInterval, DefaultEvictInterval),
		MaxTradeHistory:      orInt(fc.Ledger.MaxTradeHistory, DefaultMaxTradeHistory),
		MaxBarHistory:        orInt(fc.Ledger.MaxBarHistory, DefaultMaxBarHistory),
		SubmitTimeout:        orDuration(fc.Submission.Timeout, DefaultSubmitTimeout),
		SubmitWorkers:        orInt(fc.Submission.Workers, DefaultSubmitWorkers),
		SubmitQueueSize:      orInt(fc.Submission.QueueSize, DefaultSubmitQueueSize),
		EventQueueSize:       orInt(fc.Engine.EventQueueSize, DefaultEventQueueSize),
		ShutdownTimeout:      orDuration(fc.Engine.ShutdownTimeout, DefaultShutdownTimeout),
		SeedPositions:        seed,
		CheckpointPath:       fc.Broker.CheckpointPath,
		StoreDSN:             fc.Store.DSN,
		StoreQueueSize:       orInt(fc.Store.QueueSize, DefaultJournalQueueSize),
		ProbeAddr:            fc.Probe.Addr,
		Profiler:             fc.Profiler,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MarketDataURL == "":
		return invalid("feed.marketDataUrl is empty")
	case c.OrderUpdatesURL == "":
		return invalid("feed.orderUpdatesUrl is empty")
	case c.RESTURL == "":
		return invalid("broker.restUrl is empty")
	case len(c.Bars)+len(c.Trades)+len(c.Quotes) == 0:
		return invalid("feed subscribes to nothing")
	case c.BackoffMax < c.BackoffMin:
		return invalid("feed.backoffMax is below backoffMin")
	case c.MaxReconnectAttempts < 0:
		return invalid("feed.maxReconnectAttempts must be >= 0")
	case c.SubmitWorkers <= 0:
		return invalid("submission.workers must be > 0")
	case c.Risk.DefaultMaxPosition < 0:
		return invalid("risk.defaultMaxPosition must be >= 0")
	}
	for symbol, max := range c.Risk.MaxPosition {
		if symbol == "" || max < 0 {
			return invalid("risk.maxPosition has an invalid entry")
		}
	}
	return nil
}

// Symbols returns every subscribed symbol once.
func (c Config) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{c.Bars, c.Trades, c.Quotes} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", exception.ErrInvalidConfig, msg)
}

func orDuration(v Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v)
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
