package services

import (
	"context"
	"fmt"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// Notifier sends operator messages to the manager channel and alerts the
// admin when that fails
type Notifier struct {
	messenger     ports.MessengerPort
	managerChatID string
	adminChatID   string
	logger        logger.Logger
}

var _ ports.NotifierPort = (*Notifier)(nil)

// NewNotifier creates a Notifier
func NewNotifier(messenger ports.MessengerPort, managerChatID, adminChatID string, log logger.Logger) *Notifier {
	return &Notifier{
		messenger:     messenger,
		managerChatID: managerChatID,
		adminChatID:   adminChatID,
		logger:        log.WithField("component", "notifier"),
	}
}

// NotifyManager sends text to the manager channel. On failure the admin gets
// a message with the error and the original error is returned.
func (n *Notifier) NotifyManager(ctx context.Context, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := n.messenger.Send(sendCtx, n.managerChatID, text, domain.SendOptions{})
	if err == nil {
		n.logger.Info("Message sent to manager chat", "chat_id", n.managerChatID)
		return nil
	}
	n.logger.Error("Failed to send message to manager chat", "chat_id", n.managerChatID, "error", err)

	fallbackCtx, cancelFallback := context.WithTimeout(ctx, sendTimeout)
	defer cancelFallback()

	if _, ferr := n.messenger.Send(fallbackCtx, n.adminChatID, fmt.Sprintf(textManagerFallbackFormat, err), domain.SendOptions{}); ferr != nil {
		n.logger.Error("Failed to alert admin", "chat_id", n.adminChatID, "error", ferr)
	}
	return fmt.Errorf("notify manager: %w", err)
}
