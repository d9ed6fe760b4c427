package domain

import (
	"errors"
	"time"
)

type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageSystem    MessageRole = "system"
)

func (r MessageRole) Valid() bool {
	switch r {
	case MessageUser, MessageAssistant, MessageSystem:
		return true
	}
	return false
}

const (
	DefaultChatTitle = "New Chat"
	ChatGreeting     = "Hello! I'm your MediScan AI assistant. How can I help you today?"
)

// DefaultChatRetention is how long a chat lives after its last update.
const DefaultChatRetention = 30 * 24 * time.Hour

var ErrEmptyMessage = errors.New("message content is required")

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ChatSummary is a chat without its transcript, used for listings.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c Chat) Summary() ChatSummary {
	return ChatSummary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
