package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/ops"
	"tradecore/internal/schema"
)

var testCreds = ops.Credentials{KeyID: "key", SecretKey: "secret"}

func TestSendAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, sonic.Unmarshal(body, &got))
		assert.Equal(t, "c-1", got["client_order_id"])
		assert.Equal(t, "SYM", got["symbol"])
		assert.Equal(t, "buy", got["side"])
		assert.Equal(t, "IOC", got["time_in_force"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"b-1","status":"accepted"}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL+"/", testCreds)
	req := schema.NewIOCLimit("SYM", schema.OrderSideBuy, 5, decimal.RequireFromString("10.25"))
	req.ClientOrderID = "c-1"

	reply, err := d.Send(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, reply.Rejected)
	assert.Equal(t, "b-1", reply.BrokerOrderID)
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"insufficient buying power"}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, testCreds)
	reply, err := d.Send(context.Background(), schema.NewIOCLimit("SYM", schema.OrderSideSell, 1, decimal.NewFromInt(1)))
	require.NoError(t, err)
	assert.True(t, reply.Rejected)
	assert.Equal(t, "insufficient buying power", reply.Reason)
}

func TestSendDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewDelegator(srv.Client(), srv.URL, testCreds)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Send(ctx, schema.NewIOCLimit("SYM", schema.OrderSideBuy, 1, decimal.NewFromInt(1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/positions", r.URL.Path)
		_, _ = w.Write([]byte(`[{"symbol":"AAA","qty":"10","avg_entry_price":"12.5","side":"long"},{"symbol":"BBB","qty":"3","avg_entry_price":"4","side":"short"}]`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, testCreds)
	positions, err := d.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, schema.Quantity(10), positions[0].Qty)
	assert.True(t, decimal.RequireFromString("12.5").Equal(positions[0].AvgCost))
	assert.Equal(t, schema.Quantity(-3), positions[1].Qty)
	assert.False(t, positions[1].UpdatedAt.IsZero())
}

func TestPositionsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, testCreds)
	_, err := d.Positions(context.Background())
	assert.Error(t, err)
}
