package domain

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when a user record does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUserID is returned when a user id cannot be parsed
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrNotConnected is returned when the chat transport is offline
	ErrNotConnected = errors.New("chat transport is not connected")
)

// IncomingMessage is a text message received from the chat transport
type IncomingMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Text      string    `json:"text"`
	IsGroup   bool      `json:"is_group"`
	SentAt    time.Time `json:"sent_at"`
}

// Callback is a user's choice on an interactive control attached to a
// previously sent message (an inline button press or a poll vote)
type Callback struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Data      string `json:"data"`
}

// ControlKind selects the interactive control attached to an outgoing message
type ControlKind string

const (
	// ControlNone sends plain text
	ControlNone ControlKind = ""

	// ControlRating attaches the five-way 1..5 rating choice
	ControlRating ControlKind = "rating"

	// ControlFeedback attaches the single "leave feedback" button
	ControlFeedback ControlKind = "feedback"
)

// SendOptions controls how an outgoing message is rendered
type SendOptions struct {
	Control ControlKind
	// Format enables markdown-to-transport formatting of LLM output
	Format bool
}
