// Package codec translates broker JSON frames into schema types and back.
package codec

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
	"tradecore/pkg/scanner"
)

var (
	keyType  = []byte(`"type"`)
	keyEvent = []byte(`"event"`)
)

// ControlKind classifies non-data frames sent by the broker.
type ControlKind uint16

const (
	ControlUnknown ControlKind = iota
	ControlSuccess
	ControlError
	ControlSubscription
	ControlListening
	ControlAuthorization
)

func (k ControlKind) String() string {
	switch k {
	case ControlSuccess:
		return "success"
	case ControlError:
		return "error"
	case ControlSubscription:
		return "subscription"
	case ControlListening:
		return "listening"
	case ControlAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

func parseControlKind(s string) ControlKind {
	switch s {
	case "success":
		return ControlSuccess
	case "error":
		return ControlError
	case "subscription":
		return ControlSubscription
	case "listening":
		return ControlListening
	case "authorization":
		return ControlAuthorization
	default:
		return ControlUnknown
	}
}

// Control is a handshake, subscription or error frame.
type Control struct {
	Kind    ControlKind
	Message string
	Code    int
}

// Message is one decoded element of an inbound frame. Exactly one of
// Control or Payload is set.
type Message struct {
	Type    schema.EventType
	Payload any
	Control *Control
	TsEvent int64
}

// splitFrame returns the individual messages of a frame. Frames carry either
// a single object or an array of objects.
func splitFrame(frame []byte) ([][]byte, error) {
	switch scanner.FirstNonSpace(frame) {
	case '{':
		return [][]byte{frame}, nil
	case '[':
		var raws []json.RawMessage
		if err := sonic.Unmarshal(frame, &raws); err != nil {
			return nil, exception.NewMalformedEventError(frame, err)
		}
		out := make([][]byte, 0, len(raws))
		for _, raw := range raws {
			out = append(out, raw)
		}
		return out, nil
	default:
		return nil, exception.NewMalformedEventError(frame, exception.ErrUnknownMessageType)
	}
}

func decodeControl(raw []byte, kind ControlKind) (Message, error) {
	var w struct {
		Msg    string `json:"msg"`
		Status string `json:"status"`
		Code   int    `json:"code"`
	}
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return Message{}, exception.NewMalformedEventError(raw, err)
	}
	msg := w.Msg
	if msg == "" {
		msg = w.Status
	}
	return Message{Control: &Control{Kind: kind, Message: msg, Code: w.Code}}, nil
}

// quantity converts a wire number or numeric string into a whole share count.
func quantity(raw []byte, field string, d *decimal.Decimal) (schema.Quantity, error) {
	if d == nil {
		return 0, exception.NewMalformedEventError(raw, missing(field))
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, exception.NewMalformedEventError(raw, &fieldError{field: field, reason: "fractional quantity"})
	}
	return schema.Quantity(d.IntPart()), nil
}

func missing(field string) error {
	return &fieldError{field: field}
}

// fieldError names the offending field. An empty reason means the field was
// absent.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	if e.reason == "" {
		return exception.ErrMissingField.Error() + ": " + e.field
	}
	return "invalid field " + e.field + ": " + e.reason
}

func (e *fieldError) Unwrap() error {
	if e.reason == "" {
		return exception.ErrMissingField
	}
	return nil
}
