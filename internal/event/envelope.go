package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Sender identifies which side of a conversation produced an event.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid reports whether the sender is a known value.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// Closed kind set for the typed wire shape.
const (
	KindMessage = "message"
	KindTyping  = "typing"
)

// Reserved event names on the generic wire shape.
const (
	NameJoin      = "room:join"
	NameHeartbeat = "heartbeat"
	NameError     = "error"
)

// WireShape records which wire format an envelope was decoded from,
// so Encode can reproduce it losslessly.
type WireShape string

const (
	ShapeTyped   WireShape = "typed"
	ShapeGeneric WireShape = "generic"
)

// Envelope is the validated, normalized representation of one event.
type Envelope struct {
	RoomID     int64           // Target room (always > 0 after validation)
	Sender     Sender          // "user" or "agent"
	Kind       string          // Event kind ("message", "typing", or open names from the generic shape)
	Payload    json.RawMessage // Kind-specific data (opaque for unknown generic kinds)
	Shape      WireShape       // Wire format the envelope arrived in
	ReceivedAt time.Time       // Local timestamp when the frame was read
}

// MalformedEventError reports an envelope that failed validation.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed event: " + e.Reason
}

// IsMalformed reports whether err is a validation failure.
func IsMalformed(err error) bool {
	var m *MalformedEventError
	return errors.As(err, &m)
}

func malformed(reason string) error {
	return &MalformedEventError{Reason: reason}
}

// typedWire is wire shape (a): strongly-typed envelope with a closed kind set.
type typedWire struct {
	RoomID int64     `json:"roomId"`
	Sender Sender    `json:"sender"`
	Data   typedData `json:"data"`
}

type typedData struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// genericWire is wire shape (b): string-named event with opaque data.
type genericWire struct {
	Event  string          `json:"event"`
	RoomID int64           `json:"roomId"`
	Sender Sender          `json:"sender,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decode normalizes a wire message into an Envelope. It sniffs the shape:
// a non-empty top-level "event" field selects the generic shape, anything
// else is parsed as the typed shape.
func Decode(data []byte, receivedAt time.Time) (Envelope, error) {
	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, malformed("invalid json")
	}

	if probe.Event != "" {
		return DecodeGeneric(data, receivedAt)
	}
	return DecodeTyped(data, receivedAt)
}

// DecodeTyped parses the strongly-typed wire shape. Unknown kinds are
// rejected (the kind set is closed for this shape).
func DecodeTyped(data []byte, receivedAt time.Time) (Envelope, error) {
	var wire typedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, malformed("invalid json")
	}

	if wire.RoomID <= 0 {
		return Envelope{}, malformed("roomId must be a positive integer")
	}
	if !wire.Sender.Valid() {
		return Envelope{}, malformed("sender must be \"user\" or \"agent\"")
	}
	if wire.Data.Kind == "" {
		return Envelope{}, malformed("missing kind")
	}

	switch wire.Data.Kind {
	case KindMessage, KindTyping:
		if err := validatePayload(wire.Data.Kind, wire.Data.Payload); err != nil {
			return Envelope{}, err
		}
	default:
		return Envelope{}, malformed("unknown kind " + wire.Data.Kind)
	}

	return Envelope{
		RoomID:     wire.RoomID,
		Sender:     wire.Sender,
		Kind:       wire.Data.Kind,
		Payload:    wire.Data.Payload,
		Shape:      ShapeTyped,
		ReceivedAt: receivedAt,
	}, nil
}

// DecodeGeneric parses the generic wire shape. Unknown event names pass
// through with an opaque payload so new event types relay without a
// redeploy. A missing sender defaults to "user".
func DecodeGeneric(data []byte, receivedAt time.Time) (Envelope, error) {
	var wire genericWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, malformed("invalid json")
	}

	if wire.Event == "" {
		return Envelope{}, malformed("missing event name")
	}
	if wire.RoomID <= 0 {
		return Envelope{}, malformed("roomId must be a positive integer")
	}

	sender := wire.Sender
	if sender == "" {
		sender = SenderUser
	}
	if !sender.Valid() {
		return Envelope{}, malformed("sender must be \"user\" or \"agent\"")
	}

	// Known kinds still get payload validation on the generic shape.
	switch wire.Event {
	case KindMessage, KindTyping:
		if err := validatePayload(wire.Event, wire.Data); err != nil {
			return Envelope{}, err
		}
	}

	return Envelope{
		RoomID:     wire.RoomID,
		Sender:     sender,
		Kind:       wire.Event,
		Payload:    wire.Data,
		Shape:      ShapeGeneric,
		ReceivedAt: receivedAt,
	}, nil
}

// Encode serializes an envelope back into the wire shape it arrived in.
// Encode(Decode(x)) is semantically equal to x for all valid x.
func (e Envelope) Encode() ([]byte, error) {
	switch e.Shape {
	case ShapeGeneric:
		return json.Marshal(genericWire{
			Event:  e.Kind,
			RoomID: e.RoomID,
			Sender: e.Sender,
			Data:   e.Payload,
		})
	default:
		return json.Marshal(typedWire{
			RoomID: e.RoomID,
			Sender: e.Sender,
			Data: typedData{
				Kind:    e.Kind,
				Payload: e.Payload,
			},
		})
	}
}

// validatePayload checks the kind-specific payload schema.
func validatePayload(kind string, payload json.RawMessage) error {
	switch kind {
	case KindMessage:
		msg, err := ParseChatMessage(payload)
		if err != nil {
			return err
		}
		if msg.Content == "" {
			return malformed("message payload requires content")
		}
		if msg.Timestamp != "" {
			if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
				return malformed("message timestamp must be ISO-8601")
			}
		}
	case KindTyping:
		var tn TypingNotification
		if err := json.Unmarshal(payload, &tn); err != nil {
			return malformed("invalid typing payload")
		}
		if tn.Type != TypingStart && tn.Type != TypingStop {
			return malformed("typing type must be \"start\" or \"stop\"")
		}
	}
	return nil
}
