package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Operation codes sent by the gateway. The mapping is fixed.
const (
	OpReady    = 3
	OpVote     = 10
	OpTest     = 11
	OpReminder = 12
)

// Event names as seen by subscribers.
const (
	EventReady        = "ready"
	EventVote         = "vote"
	EventTest         = "test"
	EventReminder     = "reminder"
	EventUnknownOp    = "unknownOp"
	EventDisconnected = "disconnected"
	EventError        = "error"
)

var errNotObject = errors.New("d must be a JSON object")

// ProtocolError reports an inbound frame that did not match the frame schema.
// The frame is dropped; the connection stays open.
type ProtocolError struct {
	Frame []byte
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway: malformed frame: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// wireFrame is the envelope {op, d, ts?} of every inbound message.
type wireFrame struct {
	Op *int            `json:"op" validate:"required"`
	D  json.RawMessage `json:"d" validate:"required"`
	TS *int64          `json:"ts" validate:"omitempty,gte=0"`
}

// Event is a classified frame. The concrete types are Ready, Vote, Test,
// Reminder and UnknownOp.
type Event interface {
	EventName() string
	marker() (int64, bool)
}

// stamp carries the resumption marker merged into a payload.
type stamp struct {
	Timestamp int64 `json:"ts,omitempty"`
	hasMarker bool
}

func (s stamp) marker() (int64, bool) { return s.Timestamp, s.hasMarker }

// HasMarker reports whether the frame carried a resumption marker.
func (s stamp) HasMarker() bool { return s.hasMarker }

// Ready acknowledges the handshake.
type Ready struct {
	SessionID string          `json:"sessionId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Raw       json.RawMessage `json:"-"`
	stamp
}

// Vote is a user vote for an entity.
type Vote struct {
	UserID    string          `json:"userId" validate:"required"`
	EntityID  string          `json:"entityId" validate:"required"`
	IsWeekend bool            `json:"isWeekend"`
	Query     string          `json:"query,omitempty"`
	Raw       json.RawMessage `json:"-"`
	stamp
}

// Test is a test vote triggered from the service dashboard.
type Test struct {
	UserID    string          `json:"userId" validate:"required"`
	EntityID  string          `json:"entityId" validate:"required"`
	IsWeekend bool            `json:"isWeekend"`
	Query     string          `json:"query,omitempty"`
	Raw       json.RawMessage `json:"-"`
	stamp
}

// Reminder tells a user they can vote again.
type Reminder struct {
	UserID   string          `json:"userId" validate:"required"`
	EntityID string          `json:"entityId"`
	Raw      json.RawMessage `json:"-"`
	stamp
}

// UnknownOp carries a frame whose op code is not recognised.
type UnknownOp struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	stamp
}

func (Ready) EventName() string     { return EventReady }
func (Vote) EventName() string      { return EventVote }
func (Test) EventName() string      { return EventTest }
func (Reminder) EventName() string  { return EventReminder }
func (UnknownOp) EventName() string { return EventUnknownOp }

// Classifier validates inbound frames and turns them into events.
type Classifier struct {
	validate *validator.Validate
}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{validate: validator.New()}
}

// Classify decodes one frame. Any schema mismatch returns a *ProtocolError.
func (c *Classifier) Classify(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &ProtocolError{Frame: data, Err: err}
	}
	if err := c.validate.Struct(&f); err != nil {
		return nil, &ProtocolError{Frame: data, Err: err}
	}
	if !isObject(f.D) {
		return nil, &ProtocolError{Frame: data, Err: errNotObject}
	}

	var st stamp
	if f.TS != nil {
		st = stamp{Timestamp: *f.TS, hasMarker: true}
	}

	switch *f.Op {
	case OpReady:
		var ev Ready
		if err := c.decode(f.D, &ev); err != nil {
			return nil, &ProtocolError{Frame: data, Err: err}
		}
		ev.Raw, ev.stamp = f.D, st
		return ev, nil

	case OpVote:
		var ev Vote
		if err := c.decode(f.D, &ev); err != nil {
			return nil, &ProtocolError{Frame: data, Err: err}
		}
		ev.Raw, ev.stamp = f.D, st
		return ev, nil

	case OpTest:
		var ev Test
		if err := c.decode(f.D, &ev); err != nil {
			return nil, &ProtocolError{Frame: data, Err: err}
		}
		ev.Raw, ev.stamp = f.D, st
		return ev, nil

	case OpReminder:
		var ev Reminder
		if err := c.decode(f.D, &ev); err != nil {
			return nil, &ProtocolError{Frame: data, Err: err}
		}
		ev.Raw, ev.stamp = f.D, st
		return ev, nil

	default:
		return UnknownOp{Op: *f.Op, Data: f.D, stamp: st}, nil
	}
}

func (c *Classifier) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("validating payload: %w", err)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
