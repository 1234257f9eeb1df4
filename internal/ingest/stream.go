// Package ingest keeps the market data and order update connections alive
// and turns their frames into bus events.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/codec"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
	"tradecore/pkg/websocket"
)

// Config describes both streaming connections.
type Config struct {
	MarketDataURL   string
	OrderUpdatesURL string
	Subscription    codec.Subscription
	Credentials     ops.Credentials

	Backoff              websocket.Backoff
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	// ReadTimeout drops a connection that has been silent this long.
	ReadTimeout time.Duration

	Metrics *obs.Metrics

	// Dialers override the default gorilla dialers.
	MarketDataDialer   websocket.Dialer
	OrderUpdatesDialer websocket.Dialer
}

// ConfigFrom maps the runtime configuration onto stream settings.
func ConfigFrom(cfg ops.Config, creds ops.Credentials, metrics *obs.Metrics) Config {
	return Config{
		MarketDataURL:   cfg.MarketDataURL,
		OrderUpdatesURL: cfg.OrderUpdatesURL,
		Subscription: codec.Subscription{
			Bars:   cfg.Bars,
			Trades: cfg.Trades,
			Quotes: cfg.Quotes,
		},
		Credentials:          creds,
		Backoff:              websocket.NewBackoff(cfg.BackoffMin, cfg.BackoffMax),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		PingInterval:         cfg.PingInterval,
		ReadTimeout:          cfg.ReadTimeout,
		Metrics:              metrics,
	}
}

// Stream owns the two physical connections.
type Stream struct {
	channels []*channel
	cancel   context.CancelFunc
	wg       conc.WaitGroup

	errOnce sync.Once
	err     error
}

type channel struct {
	name    string
	id      schema.Channel
	manager *websocket.Manager
	decode  decodeFunc
	events  *bus.Queue
	metrics *obs.Metrics
	seq     atomic.Uint64
	state   atomic.Uint32
	ctx     context.Context
}

// Connect dials and authenticates both connections, then starts one
// goroutine per connection that publishes decoded events onto events.
func Connect(ctx context.Context, cfg Config, events *bus.Queue) (*Stream, error) {
	if events == nil {
		return nil, exception.ErrNilInstance
	}
	auth, err := codec.EncodeAuth(cfg.Credentials.KeyID, cfg.Credentials.SecretKey)
	if err != nil {
		return nil, err
	}
	subscribe, err := codec.EncodeSubscribe(cfg.Subscription)
	if err != nil {
		return nil, err
	}
	listen, err := codec.EncodeListen(codec.TradeUpdatesStream)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Stream{cancel: cancel}

	market, err := newChannel(runCtx, cfg, channelOptions{
		name:      "market_data",
		id:        schema.ChannelMarketData,
		url:       cfg.MarketDataURL,
		dialer:    cfg.MarketDataDialer,
		decode:    codec.DecodeMarketData,
		auth:      auth,
		subscribe: subscribe,
	}, events)
	if err != nil {
		cancel()
		return nil, err
	}
	orders, err := newChannel(runCtx, cfg, channelOptions{
		name:      "order_updates",
		id:        schema.ChannelOrderUpdates,
		url:       cfg.OrderUpdatesURL,
		dialer:    cfg.OrderUpdatesDialer,
		decode:    codec.DecodeOrderUpdates,
		auth:      auth,
		subscribe: listen,
	}, events)
	if err != nil {
		cancel()
		return nil, err
	}
	s.channels = []*channel{market, orders}

	for i, ch := range s.channels {
		if err := ch.manager.Connect(ctx); err != nil {
			for _, opened := range s.channels[:i] {
				_ = opened.manager.Close()
			}
			cancel()
			return nil, err
		}
	}

	for _, ch := range s.channels {
		s.wg.Go(func() {
			s.run(runCtx, ch)
		})
	}
	return s, nil
}

type channelOptions struct {
	name      string
	id        schema.Channel
	url       string
	dialer    websocket.Dialer
	decode    decodeFunc
	auth      []byte
	subscribe []byte
}

func newChannel(ctx context.Context, cfg Config, opts channelOptions, events *bus.Queue) (*channel, error) {
	ch := &channel{
		name:    opts.name,
		id:      opts.id,
		decode:  opts.decode,
		events:  events,
		metrics: cfg.Metrics,
		ctx:     ctx,
	}

	dialer := opts.dialer
	if dialer == nil {
		d := websocket.NewDialer(opts.url, nil)
		if cfg.HandshakeTimeout > 0 {
			d.HandshakeTimeout = cfg.HandshakeTimeout
		}
		d.ReadTimeout = cfg.ReadTimeout
		dialer = d
	}

	manager, err := websocket.NewManager(websocket.Config{
		Name:                 opts.url,
		Dialer:               dialer,
		Backoff:              cfg.Backoff,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		PingInterval:         cfg.PingInterval,
		OnConnect:            handshake(opts.name, opts.auth, opts.subscribe, opts.decode, cfg.HandshakeTimeout),
		OnMessage:            ch.onMessage,
		OnStateChange:        ch.onStateChange,
	})
	if err != nil {
		return nil, err
	}
	ch.manager = manager
	return ch, nil
}

func (s *Stream) run(ctx context.Context, ch *channel) {
	err := ch.manager.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logs.Errorf("%s stream stopped, err: %+v", ch.name, err)
	s.errOnce.Do(func() {
		s.err = err
	})
	// one dead connection takes the other down with it
	s.Close()
}

// Wait blocks until both connections have stopped. It returns
// exception.ErrReconnectExhausted when a connection gave up.
func (s *Stream) Wait() error {
	s.wg.Wait()
	return s.err
}

// Close stops both connections. The ledgers fed by the stream are untouched.
func (s *Stream) Close() {
	s.cancel()
	for _, ch := range s.channels {
		_ = ch.manager.Close()
	}
}

// State reports the connection state of a channel.
func (s *Stream) State(id schema.Channel) schema.ConnState {
	for _, ch := range s.channels {
		if ch.id == id {
			return schema.ConnState(ch.state.Load())
		}
	}
	return schema.ConnStateIdle
}

func (ch *channel) onMessage(_ websocket.MessageType, frame []byte) {
	recv := time.Now().UnixNano()
	msgs, errs := ch.decode(frame)
	for _, err := range errs {
		ch.metrics.IncDecodeError(ch.id)
		logs.Errorf("%s: drop malformed frame, err: %+v", ch.name, err)
	}
	for _, msg := range msgs {
		if msg.Control != nil {
			ch.onControl(msg.Control)
			continue
		}
		e := bus.Event{
			Header:  schema.NewHeader(msg.Type, ch.id, ch.seq.Add(1), msg.TsEvent, recv),
			Payload: msg.Payload,
		}
		if err := ch.events.Publish(ch.ctx, e); err != nil {
			logs.Errorf("%s: publish %s event failed, err: %+v", ch.name, msg.Type, err)
			return
		}
	}
}

func (ch *channel) onControl(c *codec.Control) {
	if c.Kind == codec.ControlError {
		logs.Errorf("%s: broker error %d: %s", ch.name, c.Code, c.Message)
		return
	}
	logs.Infof("%s: %s %s", ch.name, c.Kind, c.Message)
}

func (ch *channel) onStateChange(state websocket.State, attempt int, err error) {
	cs := connState(state)
	ch.state.Store(uint32(cs))

	switch state {
	case websocket.StateConnected:
		logs.Infof("%s: connected", ch.name)
	case websocket.StateReconnecting:
		ch.metrics.IncReconnect(ch.id)
		logs.Errorf("%s: reconnecting, attempt %d, err: %+v", ch.name, attempt, err)
	case websocket.StateFailed:
		logs.Errorf("%s: connection failed after %d attempts, err: %+v", ch.name, attempt, err)
	default:
		return
	}

	e := bus.Event{
		Header: schema.NewHeader(schema.EventStreamStatus, ch.id, ch.seq.Add(1), 0, time.Now().UnixNano()),
		Payload: schema.StreamStatus{
			Channel: ch.id,
			State:   cs,
			Attempt: attempt,
			Err:     err,
			At:      time.Now(),
		},
	}
	if perr := ch.events.Publish(ch.ctx, e); perr != nil {
		logs.Errorf("%s: publish stream status failed, err: %+v", ch.name, perr)
	}
}

func connState(s websocket.State) schema.ConnState {
	switch s {
	case websocket.StateConnecting:
		return schema.ConnStateConnecting
	case websocket.StateConnected:
		return schema.ConnStateConnected
	case websocket.StateReconnecting:
		return schema.ConnStateReconnecting
	case websocket.StateFailed:
		return schema.ConnStateFailed
	case websocket.StateClosed:
		return schema.ConnStateClosed
	default:
		return schema.ConnStateIdle
	}
}
