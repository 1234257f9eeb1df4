package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/codec"
	"tradecore/internal/ops"
	"tradecore/internal/schema"
)

const (
	_ordersPath    = "/v2/orders"
	_positionsPath = "/v2/positions"

	_headerKeyID  = "APCA-API-KEY-ID"
	_headerSecret = "APCA-API-SECRET-KEY"

	_maxBodySize = 1 << 20
)

// Delegator talks to the broker REST API. It satisfies order.Delegator and
// state.PositionSource.
type Delegator struct {
	client  *http.Client
	baseURL string
	creds   ops.Credentials
}

// NewDelegator creates a delegator. A nil client uses a client with a 30s
// timeout; per-request deadlines come from the caller's context.
func NewDelegator(client *http.Client, baseURL string, creds ops.Credentials) *Delegator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Delegator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

// Send posts an order. Broker-side refusals come back as a rejected reply,
// transport failures as an error.
func (d *Delegator) Send(ctx context.Context, req schema.OrderRequest) (codec.OrderReply, error) {
	payload, err := codec.EncodeOrderRequest(req)
	if err != nil {
		return codec.OrderReply{}, errors.Wrap(err, "encode order request")
	}

	status, body, err := d.do(ctx, http.MethodPost, _ordersPath, payload)
	if err != nil {
		return codec.OrderReply{}, err
	}
	return codec.DecodeOrderReply(status, body)
}

// Positions lists the broker's open positions.
func (d *Delegator) Positions(ctx context.Context) ([]schema.PositionRecord, error) {
	status, body, err := d.do(ctx, http.MethodGet, _positionsPath, nil)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, errors.Errorf("list positions: unexpected status %d: %s", status, body)
	}
	positions, err := codec.DecodePositions(body)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range positions {
		positions[i].UpdatedAt = now
	}
	return positions, nil
}

func (d *Delegator) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	r, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	if payload != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Accept", "application/json")
	r.Header.Set(_headerKeyID, d.creds.KeyID)
	r.Header.Set(_headerSecret, d.creds.SecretKey)

	resp, err := d.client.Do(r)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, _maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}
