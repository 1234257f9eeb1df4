package schema

import "time"

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an event carried by the bus.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventBar
	EventTrade
	EventQuote
	EventOrderUpdate
	EventSubmission
	EventStreamStatus
)

var eventTypeNames = [...]string{
	EventUnknown:      "unknown",
	EventBar:          "bar",
	EventTrade:        "trade",
	EventQuote:        "quote",
	EventOrderUpdate:  "order_update",
	EventSubmission:   "submission",
	EventStreamStatus: "stream_status",
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return eventTypeNames[EventUnknown]
}

// Channel is the logical stream an event arrived on. Ordering is only
// guaranteed within a channel.
type Channel uint16

const (
	ChannelUnknown Channel = iota
	ChannelMarketData
	ChannelOrderUpdates
	ChannelSubmission
)

func (c Channel) String() string {
	switch c {
	case ChannelMarketData:
		return "market_data"
	case ChannelOrderUpdates:
		return "order_updates"
	case ChannelSubmission:
		return "submission"
	default:
		return "unknown"
	}
}

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Channel Channel
	Seq     uint64
	TsEvent int64
	TsRecv  int64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, channel Channel, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Channel: channel,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// ConnState describes the connection lifecycle of a channel.
type ConnState uint16

const (
	ConnStateIdle ConnState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateReconnecting
	ConnStateFailed
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateIdle:
		return "idle"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateReconnecting:
		return "reconnecting"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamStatus is an informational connection transition. A Reconnecting
// status marks a gap: events may have happened server-side meanwhile.
type StreamStatus struct {
	Channel Channel
	State   ConnState
	Attempt int
	Err     error
	At      time.Time
}
