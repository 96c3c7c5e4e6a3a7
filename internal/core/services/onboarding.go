package services

import (
	"context"
	"strings"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// OnboardingStep is the question a chat is currently answering
type OnboardingStep int

const (
	StepCountry OnboardingStep = iota
	StepInterests
	StepSubject
)

// OnboardingForm holds the answers collected so far
type OnboardingForm struct {
	Step      OnboardingStep
	Country   *string
	Interests *string
}

// Onboarding asks new users for their country, interests and subject
type Onboarding struct {
	forms     ports.SessionStore[string, *OnboardingForm]
	users     ports.UserRepositoryPort
	messenger ports.MessengerPort
	logger    logger.Logger
}

// NewOnboarding creates an Onboarding flow
func NewOnboarding(forms ports.SessionStore[string, *OnboardingForm], users ports.UserRepositoryPort, messenger ports.MessengerPort, log logger.Logger) *Onboarding {
	return &Onboarding{
		forms:     forms,
		users:     users,
		messenger: messenger,
		logger:    log.WithField("component", "onboarding"),
	}
}

// Start asks the first question, restarting any form in progress
func (o *Onboarding) Start(ctx context.Context, chatID string) error {
	o.forms.Put(chatID, &OnboardingForm{Step: StepCountry})
	return o.ask(ctx, chatID, textOnboardingCountry, countryOptions)
}

// Handle consumes msg as the answer to the current question. It returns false
// when the chat has no form in progress.
func (o *Onboarding) Handle(ctx context.Context, msg domain.IncomingMessage) bool {
	answer := parseAnswer(msg.Text)

	var (
		form   OnboardingForm
		active bool
	)
	o.forms.Compute(msg.ChatID, func(f *OnboardingForm, ok bool) (*OnboardingForm, bool) {
		if !ok {
			return f, false
		}
		active = true
		form = *f
		switch f.Step {
		case StepCountry:
			f.Country = answer
			f.Step = StepInterests
		case StepInterests:
			f.Interests = answer
			f.Step = StepSubject
		case StepSubject:
			return nil, false
		}
		return f, true
	})
	if !active {
		return false
	}

	switch form.Step {
	case StepCountry:
		if answer != nil {
			o.update(ctx, msg.UserID, domain.OnboardingUpdate{Country: answer})
		}
		o.send(ctx, msg.ChatID, o.prompt(textOnboardingInterests, interestOptions))
	case StepInterests:
		if answer != nil {
			o.update(ctx, msg.UserID, domain.OnboardingUpdate{Interests: answer})
		}
		o.send(ctx, msg.ChatID, o.prompt(textOnboardingSubject, subjectOptions))
	case StepSubject:
		o.update(ctx, msg.UserID, domain.OnboardingUpdate{
			Country:   form.Country,
			Interests: form.Interests,
			Subject:   answer,
			Completed: true,
		})
		o.logger.Info("Onboarding completed", "user_id", msg.UserID)
		o.send(ctx, msg.ChatID, textOnboardingDone)
	}
	return true
}

func (o *Onboarding) ask(ctx context.Context, chatID, question string, options []string) error {
	_, err := o.messenger.Send(ctx, chatID, o.prompt(question, options), domain.SendOptions{})
	return err
}

func (o *Onboarding) prompt(question string, options []string) string {
	var sb strings.Builder
	sb.WriteString(question)
	sb.WriteString("\n\n")
	for _, opt := range options {
		sb.WriteString("• ")
		sb.WriteString(opt)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(textOnboardingHint)
	return sb.String()
}

func (o *Onboarding) update(ctx context.Context, userID string, update domain.OnboardingUpdate) {
	if _, err := o.users.UpdateUserOnboarding(ctx, userID, update); err != nil {
		o.logger.Error("Failed to save onboarding answer", "user_id", userID, "error", err)
	}
}

func (o *Onboarding) send(ctx context.Context, chatID, text string) {
	if _, err := o.messenger.Send(ctx, chatID, text, domain.SendOptions{}); err != nil {
		o.logger.Error("Failed to send onboarding message", "chat_id", chatID, "error", err)
	}
}

// parseAnswer returns nil for a skipped or empty answer
func parseAnswer(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, skipAnswer) {
		return nil
	}
	return &text
}
