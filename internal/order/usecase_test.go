package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/codec"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type delegatorFunc func(context.Context, schema.OrderRequest) (codec.OrderReply, error)

func (f delegatorFunc) Send(ctx context.Context, req schema.OrderRequest) (codec.OrderReply, error) {
	return f(ctx, req)
}

func request(symbol string) schema.OrderRequest {
	return schema.NewIOCLimit(symbol, schema.OrderSideBuy, 10, decimal.NewFromInt(100))
}

func nextResult(t *testing.T, q *bus.Queue) schema.SubmissionResult {
	t.Helper()
	select {
	case e := <-q.Events():
		require.Equal(t, schema.EventSubmission, e.Header.Type)
		require.Equal(t, schema.ChannelSubmission, e.Header.Channel)
		res, ok := e.Payload.(schema.SubmissionResult)
		require.True(t, ok)
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no submission result")
		return schema.SubmissionResult{}
	}
}

func TestNewUsecaseNilDelegator(t *testing.T) {
	_, err := NewUsecase(Config{}, nil, bus.NewQueue(1))
	assert.ErrorIs(t, err, exception.ErrOrderNilDelegator)
}

func TestHandleQueueFull(t *testing.T) {
	use, err := NewUsecase(Config{Workers: 1, QueueSize: 1}, delegatorFunc(func(context.Context, schema.OrderRequest) (codec.OrderReply, error) {
		return codec.OrderReply{}, nil
	}), bus.NewQueue(1))
	require.NoError(t, err)

	require.NoError(t, use.Handle(request("SYM")))
	assert.ErrorIs(t, use.Handle(request("SYM")), exception.ErrOrderQueueFull)
	assert.Equal(t, 1, use.Pending())
}

func TestWorkersPublishOutcomes(t *testing.T) {
	metrics := obs.NewMetrics()
	results := bus.NewQueue(8)
	use, err := NewUsecase(Config{Workers: 1, Metrics: metrics}, delegatorFunc(func(_ context.Context, req schema.OrderRequest) (codec.OrderReply, error) {
		switch req.Symbol {
		case "ACK":
			return codec.OrderReply{BrokerOrderID: "b-1"}, nil
		case "REJ":
			return codec.OrderReply{Rejected: true, Reason: "insufficient buying power"}, nil
		default:
			return codec.OrderReply{}, errors.New("connection reset")
		}
	}), results)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- use.Run(ctx) }()

	ack, rej, fail := request("ACK"), request("REJ"), request("ERR")
	require.NoError(t, use.Handle(ack))
	require.NoError(t, use.Handle(rej))
	require.NoError(t, use.Handle(fail))

	res := nextResult(t, results)
	assert.Equal(t, ack.ClientOrderID, res.ClientOrderID)
	assert.Equal(t, schema.SubmissionAcked, res.Status)
	assert.Equal(t, "b-1", res.BrokerOrderID)

	res = nextResult(t, results)
	assert.Equal(t, rej.ClientOrderID, res.ClientOrderID)
	assert.Equal(t, schema.SubmissionRejected, res.Status)
	assert.Equal(t, "insufficient buying power", res.Reason)

	res = nextResult(t, results)
	assert.Equal(t, fail.ClientOrderID, res.ClientOrderID)
	assert.Equal(t, schema.SubmissionFailed, res.Status)
	assert.Error(t, res.Err)

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, use.Handle(request("SYM")), exception.ErrOrderQueueClosed)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.SubmissionCounts["acked"])
	assert.Equal(t, uint64(1), snap.SubmissionCounts["rejected"])
	assert.Equal(t, uint64(1), snap.SubmissionCounts["failed"])
}

func TestSubmissionTimeout(t *testing.T) {
	results := bus.NewQueue(1)
	use, err := NewUsecase(Config{Workers: 1, Timeout: 20 * time.Millisecond}, delegatorFunc(func(ctx context.Context, _ schema.OrderRequest) (codec.OrderReply, error) {
		<-ctx.Done()
		return codec.OrderReply{}, ctx.Err()
	}), results)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = use.Run(ctx) }()

	req := request("SYM")
	require.NoError(t, use.Handle(req))

	res := nextResult(t, results)
	assert.Equal(t, schema.SubmissionFailed, res.Status)
	var timeout *exception.SubmissionTimeoutError
	require.ErrorAs(t, res.Err, &timeout)
	assert.Equal(t, req.ClientOrderID, timeout.ClientOrderID)
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
}

func TestShutdownLetsInFlightFinish(t *testing.T) {
	results := bus.NewQueue(4)
	started := make(chan struct{})
	release := make(chan struct{})
	use, err := NewUsecase(Config{Workers: 1, ShutdownTimeout: time.Second}, delegatorFunc(func(context.Context, schema.OrderRequest) (codec.OrderReply, error) {
		close(started)
		<-release
		return codec.OrderReply{BrokerOrderID: "b-9"}, nil
	}), results)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- use.Run(ctx) }()

	require.NoError(t, use.Handle(request("SYM")))
	<-started
	cancel()
	close(release)

	require.NoError(t, <-done)
	res := nextResult(t, results)
	assert.Equal(t, schema.SubmissionAcked, res.Status)
}

func TestShutdownCancelsAfterTimeout(t *testing.T) {
	results := bus.NewQueue(4)
	started := make(chan struct{})
	use, err := NewUsecase(Config{Workers: 1, Timeout: time.Minute, ShutdownTimeout: 30 * time.Millisecond}, delegatorFunc(func(ctx context.Context, _ schema.OrderRequest) (codec.OrderReply, error) {
		close(started)
		<-ctx.Done()
		return codec.OrderReply{}, ctx.Err()
	}), results)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- use.Run(ctx) }()

	require.NoError(t, use.Handle(request("SYM")))
	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after shutdown timeout")
	}
}
