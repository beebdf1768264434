// Package protocol defines the JSON wire frames exchanged with clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType identifies the kind of a protocol frame.
type FrameType string

// Inbound frame types.
const (
	TypeJoinRoom    FrameType = "JOIN_ROOM"
	TypeSendMessage FrameType = "SEND_MESSAGE"
	TypeTyping      FrameType = "TYPING"
	TypeReadReceipt FrameType = "READ_RECEIPT"
)

// Outbound frame types.
const (
	TypeAck         FrameType = "ACK"
	TypeErrAck      FrameType = "ERR_ACK"
	TypeSystem      FrameType = "SYSTEM"
	TypeRoomMessage FrameType = "ROOM_MESSAGE"
)

// ErrMalformed reports a frame that could not be parsed or validated.
// Frames failing with ErrMalformed must never mutate engine state.
var ErrMalformed = errors.New("malformed frame")

// Frame is the envelope for every message on the wire.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeFrame parses an inbound byte frame into its envelope.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return f, nil
}

// JoinRoom is the payload of a JOIN_ROOM frame. Force requests an
// unconditional re-subscribe after a reconnect.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	Force  bool   `json:"force,omitempty"`
}

// SendMessage is the payload of a SEND_MESSAGE frame.
type SendMessage struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// Typing is the payload of an inbound TYPING frame.
type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadReceipt is the payload of an inbound READ_RECEIPT frame.
type ReadReceipt struct {
	RoomID string `json:"roomId"`
}

// JoinRoom decodes and validates a JOIN_ROOM payload.
func (f Frame) JoinRoom() (JoinRoom, error) {
	var p JoinRoom
	if err := decodePayload(f.Payload, &p); err != nil {
		return JoinRoom{}, err
	}
	if p.RoomID == "" {
		return JoinRoom{}, fmt.Errorf("%w: roomId is required", ErrMalformed)
	}
	return p, nil
}

// SendMessage decodes and validates a SEND_MESSAGE payload.
func (f Frame) SendMessage() (SendMessage, error) {
	var p SendMessage
	if err := decodePayload(f.Payload, &p); err != nil {
		return SendMessage{}, err
	}
	if p.RoomID == "" {
		return SendMessage{}, fmt.Errorf("%w: roomId is required", ErrMalformed)
	}
	if p.Text == "" {
		return SendMessage{}, fmt.Errorf("%w: text is required", ErrMalformed)
	}
	return p, nil
}

// Typing decodes and validates a TYPING payload.
func (f Frame) Typing() (Typing, error) {
	var p Typing
	if err := decodePayload(f.Payload, &p); err != nil {
		return Typing{}, err
	}
	if p.RoomID == "" {
		return Typing{}, fmt.Errorf("%w: roomId is required", ErrMalformed)
	}
	return p, nil
}

// ReadReceipt decodes and validates a READ_RECEIPT payload.
func (f Frame) ReadReceipt() (ReadReceipt, error) {
	var p ReadReceipt
	if err := decodePayload(f.Payload, &p); err != nil {
		return ReadReceipt{}, err
	}
	if p.RoomID == "" {
		return ReadReceipt{}, fmt.Errorf("%w: roomId is required", ErrMalformed)
	}
	return p, nil
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
