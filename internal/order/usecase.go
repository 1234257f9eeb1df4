package order

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
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const (
	DefaultWorkers         = 4
	DefaultQueueSize       = 256
	DefaultTimeout         = 5 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Delegator sends one order request to a broker.
type Delegator interface {
	Send(context.Context, schema.OrderRequest) (codec.OrderReply, error)
}

// Publisher receives submission results.
type Publisher interface {
	Publish(ctx context.Context, e bus.Event) error
}

// Config tunes the submission workers.
type Config struct {
	Workers         int
	QueueSize       int
	Timeout         time.Duration
	ShutdownTimeout time.Duration
	Metrics         *obs.Metrics
}

// Usecase runs a fixed pool of workers that post queued orders through the
// delegator and publish every outcome as a submission event.
type Usecase struct {
	delegator Delegator
	results   Publisher
	metrics   *obs.Metrics

	workers         int
	timeout         time.Duration
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan schema.OrderRequest
	running atomic.Bool
	seq     atomic.Uint64
}

func NewUsecase(cfg Config, delegator Delegator, results Publisher) (*Usecase, error) {
	if delegator == nil {
		return nil, exception.ErrOrderNilDelegator
	}
	if results == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Usecase{
		delegator:       delegator,
		results:         results,
		metrics:         cfg.Metrics,
		workers:         cfg.Workers,
		timeout:         cfg.Timeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		queue:           make(chan schema.OrderRequest, cfg.QueueSize),
	}, nil
}

// Handle enqueues a request without blocking.
func (use *Usecase) Handle(req schema.OrderRequest) error {
	use.mu.RLock()
	defer use.mu.RUnlock()
	if use.closed {
		return exception.ErrOrderQueueClosed
	}
	select {
	case use.queue <- req:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Pending returns the number of queued requests not yet picked by a worker.
func (use *Usecase) Pending() int {
	return len(use.queue)
}

// Run starts the workers and blocks until ctx is done. It then stops
// accepting requests and gives queued and in-flight sends up to the shutdown
// timeout before canceling them.
func (use *Usecase) Run(ctx context.Context) error {
	if use.running.Swap(true) {
		return exception.ErrEngineAlreadyRunning
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var wg conc.WaitGroup
	for range use.workers {
		wg.Go(func() {
			use.worker(workCtx)
		})
	}

	<-ctx.Done()
	use.close()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(use.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		logs.Errorf("submission workers did not finish within %s, canceling %d queued requests", use.shutdownTimeout, len(use.queue))
		cancel()
		<-finished
	}
	return nil
}

func (use *Usecase) close() {
	use.mu.Lock()
	defer use.mu.Unlock()
	if !use.closed {
		use.closed = true
		close(use.queue)
	}
}

func (use *Usecase) worker(ctx context.Context) {
	for req := range use.queue {
		res := use.execute(ctx, req)
		e := bus.Event{
			Header:  schema.NewHeader(schema.EventSubmission, schema.ChannelSubmission, use.seq.Add(1), 0, time.Now().UnixNano()),
			Payload: res,
		}
		if err := use.results.Publish(ctx, e); err != nil {
			logs.Errorf("publish submission result %s failed, err: %+v", req.ClientOrderID, err)
		}
	}
}

func (use *Usecase) execute(ctx context.Context, req schema.OrderRequest) schema.SubmissionResult {
	start := time.Now()
	res := schema.SubmissionResult{ClientOrderID: req.ClientOrderID}

	var (
		reply codec.OrderReply
		err   error
	)
	if ctx.Err() != nil {
		err = exception.ErrEngineStopped
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, use.timeout)
		reply, err = use.delegator.Send(sendCtx, req)
		if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			err = &exception.SubmissionTimeoutError{ClientOrderID: req.ClientOrderID, Timeout: use.timeout}
		}
		cancel()
	}
	res.Latency = time.Since(start)

	switch {
	case err != nil:
		res.Status = schema.SubmissionFailed
		res.Err = err
		logs.Errorf("submit order %s failed: %s %d %s @ %s, err: %+v", req.ClientOrderID, req.Side, req.Qty, req.Symbol, req.LimitPrice, err)
	case reply.Rejected:
		res.Status = schema.SubmissionRejected
		res.BrokerOrderID = reply.BrokerOrderID
		res.Reason = reply.Reason
		logs.Errorf("submit order %s rejected: %s %d %s @ %s, reason: %s", req.ClientOrderID, req.Side, req.Qty, req.Symbol, req.LimitPrice, reply.Reason)
	default:
		res.Status = schema.SubmissionAcked
		res.BrokerOrderID = reply.BrokerOrderID
		logs.Infof("submitted order %s: %s %d %s @ %s, broker id %s", req.ClientOrderID, req.Side, req.Qty, req.Symbol, req.LimitPrice, reply.BrokerOrderID)
	}
	use.metrics.ObserveSubmission(res.Status, res.Latency)
	return res
}
