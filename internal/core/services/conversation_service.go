package services

import (
	"context"
	"strings"
	"time"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// ConversationService handles incoming user messages and control presses
type ConversationService struct {
	answers       ports.AnswerPort
	users         ports.UserRepositoryPort
	messages      ports.MessageRepositoryPort
	messenger     ports.MessengerPort
	ratings       *RatingTracker
	leads         *LeadTracker
	onboarding    *Onboarding
	managerChatID string
	answerTimeout time.Duration
	logger        logger.Logger
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	answers ports.AnswerPort,
	users ports.UserRepositoryPort,
	messages ports.MessageRepositoryPort,
	messenger ports.MessengerPort,
	ratings *RatingTracker,
	leads *LeadTracker,
	onboarding *Onboarding,
	managerChatID string,
	answerTimeout time.Duration,
	log logger.Logger,
) *ConversationService {
	return &ConversationService{
		answers:       answers,
		users:         users,
		messages:      messages,
		messenger:     messenger,
		ratings:       ratings,
		leads:         leads,
		onboarding:    onboarding,
		managerChatID: managerChatID,
		answerTimeout: answerTimeout,
		logger:        log.WithField("component", "conversation"),
	}
}

// HandleMessage processes one incoming text message
func (s *ConversationService) HandleMessage(ctx context.Context, msg domain.IncomingMessage) {
	if msg.IsGroup || msg.ChatID == s.managerChatID {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, msg, strings.ToLower(strings.Fields(text)[0]))
		return
	}

	if s.onboarding.Handle(ctx, msg) {
		return
	}

	if s.ratings.AwaitingFeedback(msg.ChatID) {
		s.ratings.SubmitFeedback(ctx, msg.ChatID, msg.UserID, text)
		return
	}

	s.answer(ctx, msg, text)
}

func (s *ConversationService) handleCommand(ctx context.Context, msg domain.IncomingMessage, command string) {
	switch command {
	case "/start":
		s.start(ctx, msg)
	case "/help":
		s.ratings.RegisterActivity(msg.ChatID)
		s.reply(ctx, msg.ChatID, textHelp)
	case "/rate":
		if err := s.ratings.SendAdHocPrompt(ctx, msg.ChatID); err != nil {
			s.logger.Error("Failed to send rating prompt", "chat_id", msg.ChatID, "error", err)
		}
	default:
		s.logger.Debug("Unknown command ignored", "chat_id", msg.ChatID, "command", command)
	}
}

func (s *ConversationService) start(ctx context.Context, msg domain.IncomingMessage) {
	err := s.users.AddUser(ctx, &domain.User{
		UserID:    msg.UserID,
		Username:  msg.Username,
		FirstName: msg.FirstName,
		LastName:  msg.LastName,
	})
	if err != nil {
		s.logger.Error("Failed to add user", "user_id", msg.UserID, "error", err)
	}

	completed, err := s.users.OnboardingCompleted(ctx, msg.UserID)
	if err != nil {
		s.logger.Warn("Failed to read onboarding status", "user_id", msg.UserID, "error", err)
	}
	if !completed {
		if err := s.onboarding.Start(ctx, msg.ChatID); err != nil {
			s.logger.Error("Failed to start onboarding", "chat_id", msg.ChatID, "error", err)
		}
		return
	}
	s.reply(ctx, msg.ChatID, textGreeting)
}

func (s *ConversationService) answer(ctx context.Context, msg domain.IncomingMessage, text string) {
	log := s.logger.WithFields(map[string]any{"chat_id": msg.ChatID, "user_id": msg.UserID})
	s.ratings.RegisterActivity(msg.ChatID)

	actx, cancel := context.WithTimeout(ctx, s.answerTimeout)
	response, err := s.answers.Answer(actx, text, msg.UserID)
	cancel()
	if err != nil {
		log.Error("Failed to generate answer", "error", err)
		s.reply(ctx, msg.ChatID, textAnswerFailed)
		return
	}

	messageID, err := s.messages.AddMessage(ctx, msg.UserID, text, response)
	if err != nil {
		log.Error("Failed to save message", "error", err)
		messageID = 0
	}

	if _, err := s.messenger.Send(ctx, msg.ChatID, response, domain.SendOptions{Format: true}); err != nil {
		log.Error("Failed to send answer", "error", err)
	}

	s.leads.AppendTurn(msg.UserID, text, response)
	if messageID != 0 {
		s.ratings.StartSession(msg.ChatID, messageID)
	}
}

func (s *ConversationService) reply(ctx context.Context, chatID, text string) {
	if _, err := s.messenger.Send(ctx, chatID, text, domain.SendOptions{}); err != nil {
		s.logger.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

// HandleCallback dispatches a control press to the rating flow
func (s *ConversationService) HandleCallback(ctx context.Context, cb domain.Callback) {
	if cb.ChatID == s.managerChatID {
		return
	}

	switch cb.Data {
	case CallbackRateSkip:
		s.ratings.Skip(ctx, cb)
	case CallbackFeedbackAdd:
		s.ratings.RequestFeedback(ctx, cb)
	case CallbackFeedbackSkip:
		s.ratings.DeclineFeedback(ctx, cb)
	default:
		if rating, ok := ParseRating(cb.Data); ok {
			s.ratings.SubmitRating(ctx, cb, rating)
			return
		}
		s.logger.Warn("Unknown callback ignored", "chat_id", cb.ChatID, "data", cb.Data)
	}
}
