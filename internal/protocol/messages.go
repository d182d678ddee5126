package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies streaming payload variants.
type MessageType string

const (
	TypeUserMessage MessageType = "user_message"
	TypeAnswerDelta MessageType = "answer_delta"
	TypeAnswerEnd   MessageType = "answer_end"
	TypeErrorEvent  MessageType = "error_event"
)

// EndOfStream is the sentinel marker carried by the final message of every
// answer stream, so callers can detect completion without relying on
// transport-level closure.
const EndOfStream = "[DONE]"

// Turn end reasons.
const (
	ReasonCompleted    = "completed"
	ReasonToolAnswered = "tool_answered"
	ReasonFailed       = "failed"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage is the single inbound payload: one question for one session.
type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
}

type AnswerDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	TextDelta string      `json:"text_delta"`
}

type AnswerEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Reason    string      `json:"reason"`
	Marker    string      `json:"marker"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates an inbound client payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid user_message: empty text")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
