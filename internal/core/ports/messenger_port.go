package ports

import (
	"context"

	"github.com/vibin/lead-assistant/internal/core/domain"
)

// MessengerPort is the outbound side of the chat transport
type MessengerPort interface {
	// Send delivers text to a chat and returns the transport message id
	Send(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error)

	// Edit replaces the content of a previously sent message
	Edit(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error

	// AnswerCallback acknowledges an interactive control press
	AnswerCallback(ctx context.Context, callbackID string) error
}

// TransportPort is the lifecycle side of the chat transport
type TransportPort interface {
	MessengerPort

	// Start connects and dispatches incoming events until ctx is done
	Start(ctx context.Context) error

	// Disconnect closes the connection
	Disconnect() error

	// IsConnected checks if the client is connected
	IsConnected() bool
}

// NotifierPort delivers operator notifications
type NotifierPort interface {
	// NotifyManager sends text to the manager channel
	NotifyManager(ctx context.Context, text string) error
}
