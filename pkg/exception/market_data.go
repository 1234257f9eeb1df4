package exception

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("market data: unknown message type")
	ErrMissingField       = errors.New("market data: missing field")
)

const malformedExcerptLen = 96

// MalformedEventError reports a single undecodable message. The message is
// dropped and the stream continues.
type MalformedEventError struct {
	Raw []byte
	Err error
}

// NewMalformedEventError keeps a bounded excerpt of the raw payload.
func NewMalformedEventError(raw []byte, err error) *MalformedEventError {
	n := len(raw)
	if n > malformedExcerptLen {
		n = malformedExcerptLen
	}
	excerpt := make([]byte, n)
	copy(excerpt, raw[:n])
	return &MalformedEventError{Raw: excerpt, Err: err}
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %q, err: %v", e.Raw, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
