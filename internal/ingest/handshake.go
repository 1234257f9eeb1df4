package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/pkg/exception"
	"tradecore/pkg/websocket"
)

const (
	_authenticatedMsg = "authenticated"
	_authorizedMsg    = "authorized"
)

type decodeFunc func(frame []byte) ([]codec.Message, []error)

// authenticate sends the auth frame and waits for the broker to confirm it.
// Data frames that arrive before the confirmation are discarded.
func authenticate(ctx context.Context, conn websocket.Conn, name string, auth []byte, decode decodeFunc) error {
	if err := conn.WriteMessage(ctx, websocket.MessageText, auth); err != nil {
		return err
	}

	for {
		msgType, frame, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		msgs, errs := decode(frame)
		for _, err := range errs {
			logs.Errorf("%s handshake: drop malformed frame, err: %+v", name, err)
		}
		for _, msg := range msgs {
			if msg.Control == nil {
				continue
			}
			switch msg.Control.Kind {
			case codec.ControlError:
				return fmt.Errorf("%w: code %d: %s", exception.ErrAuthenticate, msg.Control.Code, msg.Control.Message)
			case codec.ControlAuthorization:
				if msg.Control.Message != _authorizedMsg {
					return fmt.Errorf("%w: authorization %q", exception.ErrAuthenticate, msg.Control.Message)
				}
				return nil
			case codec.ControlSuccess:
				if msg.Control.Message == _authenticatedMsg {
					return nil
				}
			}
		}
	}
}

// handshake authenticates and then sends the channel's subscription frame,
// all within timeout.
func handshake(name string, auth, subscribe []byte, decode decodeFunc, timeout time.Duration) func(context.Context, websocket.Conn) error {
	return func(ctx context.Context, conn websocket.Conn) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := authenticate(ctx, conn, name, auth, decode); err != nil {
			return err
		}
		if len(subscribe) == 0 {
			return nil
		}
		return conn.WriteMessage(ctx, websocket.MessageText, subscribe)
	}
}
