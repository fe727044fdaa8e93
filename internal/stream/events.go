package stream

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/openreach/browserpilot/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EventLog is the append-only, ordered record of everything received on the
// live channel. Entries are never reordered, deduplicated, or truncated; the
// log lives as long as the Manager that owns it.
type EventLog struct {
	mu     sync.RWMutex
	events []schemas.LiveEvent
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append adds one event at the tail.
func (l *EventLog) Append(event schemas.LiveEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns a snapshot copy of the log in arrival order.
func (l *EventLog) Events() []schemas.LiveEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]schemas.LiveEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of logged events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Normalize turns one raw inbound frame into a typed LiveEvent. It never
// fails: a frame that cannot be parsed produces a synthesized error event
// carrying the parse failure text, so no frame is ever silently dropped.
func Normalize(data []byte) schemas.LiveEvent {
	raw := make([]byte, len(data))
	copy(raw, data)

	var head struct {
		Type string `json:"type"`
	}
	if err := jsonAPI.Unmarshal(data, &head); err != nil {
		return schemas.LiveEvent{
			Kind: schemas.EventError,
			Err:  &schemas.ErrorEvent{Message: err.Error()},
			Raw:  raw,
		}
	}

	event := schemas.LiveEvent{Raw: raw}
	var err error

	switch schemas.EventKind(head.Type) {
	case schemas.EventSessionReady:
		payload := &schemas.SessionReadyEvent{}
		if err = jsonAPI.Unmarshal(data, payload); err == nil {
			event.Kind = schemas.EventSessionReady
			event.SessionReady = payload
		}
	case schemas.EventVisionDescription:
		payload := &schemas.VisionDescriptionEvent{}
		if err = jsonAPI.Unmarshal(data, payload); err == nil {
			event.Kind = schemas.EventVisionDescription
			event.Vision = payload
		}
	case schemas.EventAudioResponse:
		payload := &schemas.AudioResponseEvent{}
		if err = jsonAPI.Unmarshal(data, payload); err == nil {
			event.Kind = schemas.EventAudioResponse
			event.Audio = payload
		}
	case schemas.EventTextResponse:
		payload := &schemas.TextResponseEvent{}
		if err = jsonAPI.Unmarshal(data, payload); err == nil {
			event.Kind = schemas.EventTextResponse
			event.Text = payload
		}
	case schemas.EventError:
		payload := &schemas.ErrorEvent{}
		if err = jsonAPI.Unmarshal(data, payload); err == nil {
			event.Kind = schemas.EventError
			event.Err = payload
		}
	default:
		// Unrecognized types pass through unmodified so new server-side
		// event kinds never break older clients.
		event.Kind = schemas.EventUnknown
		return event
	}

	if err != nil {
		return schemas.LiveEvent{
			Kind: schemas.EventError,
			Err:  &schemas.ErrorEvent{Message: err.Error()},
			Raw:  raw,
		}
	}
	return event
}
