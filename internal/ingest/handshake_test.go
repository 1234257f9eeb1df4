package ingest

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/codec"
	"tradecore/pkg/exception"
	"tradecore/pkg/websocket"
)

// scriptedConn replays frames and records writes.
type scriptedConn struct {
	frames []string
	writes [][]byte
}

func (c *scriptedConn) ReadMessage(context.Context) (websocket.MessageType, []byte, error) {
	if len(c.frames) == 0 {
		return 0, nil, io.EOF
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return websocket.MessageText, []byte(f), nil
}

func (c *scriptedConn) WriteMessage(_ context.Context, _ websocket.MessageType, payload []byte) error {
	c.writes = append(c.writes, payload)
	return nil
}

func (c *scriptedConn) Close(websocket.CloseCode, string) error { return nil }

func TestAuthenticateOrderUpdates(t *testing.T) {
	cases := map[string]struct {
		frames []string
		ok     bool
	}{
		"authorized msg":    {frames: []string{`{"type":"authorization","msg":"authorized"}`}, ok: true},
		"authorized status": {frames: []string{`{"type":"authorization","status":"authorized"}`}, ok: true},
		"unauthorized":      {frames: []string{`{"type":"authorization","msg":"unauthorized"}`}},
		"empty":             {frames: []string{`{"type":"authorization"}`}},
		"error":             {frames: []string{`{"type":"error","code":401,"msg":"bad key"}`}},
		"data before auth": {
			frames: []string{`{"event":"new","client_order_id":"c-1","sequence":1}`, `{"type":"authorization","msg":"authorized"}`},
			ok:     true,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			conn := &scriptedConn{frames: tc.frames}
			err := authenticate(context.Background(), conn, "order_updates", []byte(`{"action":"auth"}`), codec.DecodeOrderUpdates)
			require.Len(t, conn.writes, 1)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, exception.ErrAuthenticate)
		})
	}
}

func TestAuthenticateMarketData(t *testing.T) {
	conn := &scriptedConn{frames: []string{`[{"type":"success","msg":"connected"}]`, `[{"type":"success","msg":"authenticated"}]`}}
	require.NoError(t, authenticate(context.Background(), conn, "market_data", []byte(`{"action":"auth"}`), codec.DecodeMarketData))

	conn = &scriptedConn{frames: []string{`[{"type":"success","msg":"connected"}]`}}
	err := authenticate(context.Background(), conn, "market_data", []byte(`{"action":"auth"}`), codec.DecodeMarketData)
	assert.ErrorIs(t, err, io.EOF)
}
