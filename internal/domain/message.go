package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies inter-agent messages.
type MessageType string

const (
	MessageRequest      MessageType = "request"
	MessageResponse     MessageType = "response"
	MessageNotification MessageType = "notification"
	MessageError        MessageType = "error"
)

// AgentMessage is a routed message between two agents. Recipient may be empty
// for broadcast notifications.
type AgentMessage struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewAgentMessage fills in the ID and timestamp when absent.
func NewAgentMessage(msg AgentMessage) AgentMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == "" {
		msg.Type = MessageNotification
	}
	return msg
}
