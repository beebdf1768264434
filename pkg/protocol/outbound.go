package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ack is the payload of an ACK or ERR_ACK frame.
type Ack struct {
	Text string `json:"text"`
}

// System is the payload of a SYSTEM notice broadcast to a room.
type System struct {
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomMessage is the payload of a chat message broadcast to a room.
// Username and Color come from the server-resolved identity.
type RoomMessage struct {
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Color     string `json:"color,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// TypingEvent is the payload of an outbound TYPING frame.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// ReceiptEvent is the payload of an outbound READ_RECEIPT frame.
type ReceiptEvent struct {
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// NewAck encodes an ACK frame.
func NewAck(text string) ([]byte, error) {
	return EncodeFrame(TypeAck, Ack{Text: text})
}

// NewErrAck encodes an ERR_ACK frame.
func NewErrAck(text string) ([]byte, error) {
	return EncodeFrame(TypeErrAck, Ack{Text: text})
}

// NewSystem encodes a SYSTEM notice frame.
func NewSystem(roomID, text string, at time.Time) ([]byte, error) {
	return EncodeFrame(TypeSystem, System{
		RoomID:    roomID,
		Text:      text,
		CreatedAt: at.UTC().UnixMilli(),
	})
}

// NewRoomMessage encodes a ROOM_MESSAGE frame.
func NewRoomMessage(roomID, text, username, color string, at time.Time) ([]byte, error) {
	return EncodeFrame(TypeRoomMessage, RoomMessage{
		RoomID:    roomID,
		Text:      text,
		Username:  username,
		Color:     color,
		CreatedAt: at.UTC().UnixMilli(),
	})
}

// NewTypingEvent encodes an outbound TYPING frame.
func NewTypingEvent(roomID, username string, isTyping bool) ([]byte, error) {
	return EncodeFrame(TypeTyping, TypingEvent{
		RoomID:   roomID,
		Username: username,
		IsTyping: isTyping,
	})
}

// NewReceiptEvent encodes an outbound READ_RECEIPT frame.
func NewReceiptEvent(roomID, username string, at time.Time) ([]byte, error) {
	return EncodeFrame(TypeReadReceipt, ReceiptEvent{
		RoomID:    roomID,
		Username:  username,
		Timestamp: at.UTC().UnixMilli(),
	})
}

// EncodeFrame wraps a payload in the frame envelope and serializes it.
func EncodeFrame(ft FrameType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", ft, err)
	}
	data, err := json.Marshal(Frame{Type: ft, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", ft, err)
	}
	return data, nil
}
