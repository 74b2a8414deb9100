package event

import (
	"encoding/json"
	"time"
)

// ChatMessage is the payload for "message" events. Chat messages are the
// persisted subset of events.
type ChatMessage struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"` // Optional ISO-8601
}

// ParseChatMessage decodes a message payload.
func ParseChatMessage(payload json.RawMessage) (ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ChatMessage{}, malformed("invalid message payload")
	}
	return msg, nil
}

// EffectiveTimestamp returns the payload timestamp when present, otherwise
// the receipt time in RFC 3339.
func (m ChatMessage) EffectiveTimestamp(receivedAt time.Time) string {
	if m.Timestamp != "" {
		return m.Timestamp
	}
	return receivedAt.UTC().Format(time.RFC3339)
}

// Typing notification states.
const (
	TypingStart = "start"
	TypingStop  = "stop"
)

// TypingNotification is the payload for "typing" events.
type TypingNotification struct {
	Type string `json:"type"` // "start" or "stop"
}

// JoinRequest is the payload of a "room:join" request.
type JoinRequest struct {
	RoomID int64 `json:"roomId"`
}

// HeartbeatTick is the periodic liveness signal broadcast to all
// connections. No acknowledgment is tracked.
type HeartbeatTick struct {
	Time time.Time `json:"time"`
}

// EncodeHeartbeat serializes a tick in the generic wire shape.
func EncodeHeartbeat(tick HeartbeatTick) []byte {
	data, _ := json.Marshal(struct {
		Event string        `json:"event"`
		Data  HeartbeatTick `json:"data"`
	}{
		Event: NameHeartbeat,
		Data:  tick,
	})
	return data
}

// ErrorReport is sent back to a sender whose event was rejected. It is
// never propagated to the room.
type ErrorReport struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error report codes.
const (
	CodeMalformedEvent = "malformed_event"
	CodeRoomNotJoined  = "room_not_joined"
)

// EncodeError serializes an error report in the generic wire shape.
func EncodeError(roomID int64, code, message string) []byte {
	data, _ := json.Marshal(struct {
		Event  string      `json:"event"`
		RoomID int64       `json:"roomId,omitempty"`
		Data   ErrorReport `json:"data"`
	}{
		Event:  NameError,
		RoomID: roomID,
		Data: ErrorReport{
			Code:    code,
			Message: message,
		},
	})
	return data
}
