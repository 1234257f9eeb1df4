package exception

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticate         = errors.New("connection: authenticate failed")
	ErrReconnectExhausted   = errors.New("connection: reconnect attempts exhausted")
	ErrEngineStopped        = errors.New("engine: stopped")
	ErrEngineAlreadyRunning = errors.New("engine: already running")
)

// ConnectionError is a transport-level failure. It triggers a reconnect and
// is never fatal to the process.
type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection %s %s failed", e.Op, e.Endpoint)
	}
	return fmt.Sprintf("connection %s %s failed, err: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
