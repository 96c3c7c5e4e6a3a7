package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vibin/lead-assistant/internal/clock"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

const sendTimeout = 30 * time.Second

// Callback data understood by the rating flow
const (
	CallbackRateSkip     = "rate:skip"
	CallbackFeedbackAdd  = "feedback:add"
	CallbackFeedbackSkip = "feedback:skip"
	callbackRatePrefix   = "rate:"
)

// RatingSession tracks one bot reply waiting for a rating in a chat
type RatingSession struct {
	// PendingMessageID is the stored message the rating is for. Zero means none.
	PendingMessageID int64
	// PromptMessageID is the transport id of the rating prompt, once sent
	PromptMessageID string
	LastActivity    time.Time
	// Rating holds a low score while the user is asked for feedback
	Rating           int
	AwaitingFeedback bool

	timer clock.Timer
}

func (s *RatingSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// RatingTracker asks users to rate a reply some time after it was sent and
// collects the rating and optional feedback
type RatingTracker struct {
	sessions    ports.SessionStore[string, *RatingSession]
	clock       clock.Clock
	messenger   ports.MessengerPort
	ratings     ports.RatingRepositoryPort
	promptDelay time.Duration
	expiry      time.Duration
	logger      logger.Logger
}

// NewRatingTracker creates a RatingTracker
func NewRatingTracker(
	sessions ports.SessionStore[string, *RatingSession],
	clk clock.Clock,
	messenger ports.MessengerPort,
	ratings ports.RatingRepositoryPort,
	promptDelay, expiry time.Duration,
	log logger.Logger,
) *RatingTracker {
	return &RatingTracker{
		sessions:    sessions,
		clock:       clk,
		messenger:   messenger,
		ratings:     ratings,
		promptDelay: promptDelay,
		expiry:      expiry,
		logger:      log.WithField("component", "rating_tracker"),
	}
}

// StartSession replaces any session for chatID with a new one for messageID
// and schedules the rating prompt
func (t *RatingTracker) StartSession(chatID string, messageID int64) {
	s := &RatingSession{
		PendingMessageID: messageID,
		LastActivity:     t.clock.Now(),
	}
	t.sessions.Compute(chatID, func(old *RatingSession, ok bool) (*RatingSession, bool) {
		if ok {
			old.stopTimer()
		}
		s.timer = t.clock.AfterFunc(t.promptDelay, func() { t.deliverPrompt(chatID, s) })
		return s, true
	})
	t.logger.Debug("Rating session started", "chat_id", chatID, "message_id", messageID)
}

// RegisterActivity records user activity in the chat. The scheduled prompt is
// left alone and still fires relative to the session start.
func (t *RatingTracker) RegisterActivity(chatID string) {
	now := t.clock.Now()
	t.sessions.Compute(chatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if ok {
			s.LastActivity = now
		}
		return s, ok
	})
}

// Session returns a copy of the live session for chatID
func (t *RatingTracker) Session(chatID string) (RatingSession, bool) {
	var (
		out   RatingSession
		found bool
	)
	// Compute rather than Get: timers and callbacks mutate sessions in place,
	// so the copy has to be taken under the store lock.
	t.sessions.Compute(chatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if ok {
			out = *s
			out.timer = nil
			found = true
		}
		return s, ok
	})
	return out, found
}

// Len returns the number of live sessions
func (t *RatingTracker) Len() int {
	return t.sessions.Len()
}

// AwaitingFeedback reports whether the next text in chatID is feedback
func (t *RatingTracker) AwaitingFeedback(chatID string) bool {
	s, ok := t.Session(chatID)
	return ok && s.AwaitingFeedback
}

// isCurrent runs fn under the store lock if s is still the session for chatID
func (t *RatingTracker) isCurrent(chatID string, s *RatingSession, fn func()) bool {
	current := false
	t.sessions.Compute(chatID, func(v *RatingSession, ok bool) (*RatingSession, bool) {
		if ok && v == s {
			current = true
			if fn != nil {
				fn()
			}
		}
		return v, ok
	})
	return current
}

func (t *RatingTracker) deliverPrompt(chatID string, s *RatingSession) {
	defer t.recoverTimer("prompt", chatID)

	if !t.isCurrent(chatID, s, func() { s.timer = nil }) {
		t.logger.Debug("Stale rating prompt ignored", "chat_id", chatID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	promptID, err := t.messenger.Send(ctx, chatID, textRatingPrompt, domain.SendOptions{Control: domain.ControlRating})
	if err != nil {
		t.logger.Error("Failed to send rating prompt", "chat_id", chatID, "error", err)
		t.sessions.Compute(chatID, func(v *RatingSession, ok bool) (*RatingSession, bool) {
			if ok && v == s {
				return nil, false
			}
			return v, ok
		})
		return
	}

	armed := t.isCurrent(chatID, s, func() {
		s.PromptMessageID = promptID
		s.timer = t.clock.AfterFunc(t.expiry, func() { t.expire(chatID, s) })
	})
	if !armed {
		t.logger.Debug("Rating session replaced while prompt was sent", "chat_id", chatID)
		return
	}
	t.logger.Info("Rating prompt sent", "chat_id", chatID, "message_id", s.PendingMessageID)
}

func (t *RatingTracker) expire(chatID string, s *RatingSession) {
	defer t.recoverTimer("expiry", chatID)

	removed := false
	t.sessions.Compute(chatID, func(v *RatingSession, ok bool) (*RatingSession, bool) {
		if ok && v == s {
			removed = true
			v.timer = nil
			return nil, false
		}
		return v, ok
	})
	if removed {
		t.logger.Info("Rating session expired", "chat_id", chatID)
	}
}

func (t *RatingTracker) recoverTimer(kind, chatID string) {
	if r := recover(); r != nil {
		t.logger.Error("Rating timer panicked", "timer", kind, "chat_id", chatID, "panic", r)
	}
}

// SendAdHocPrompt sends a rating prompt that is not tied to any reply
func (t *RatingTracker) SendAdHocPrompt(ctx context.Context, chatID string) error {
	_, err := t.messenger.Send(ctx, chatID, textAdHocRatingPrompt, domain.SendOptions{Control: domain.ControlRating})
	if err != nil {
		return fmt.Errorf("send rating prompt: %w", err)
	}
	return nil
}

// SubmitRating stores a 1..5 rating for the chat's pending reply. A low rating
// keeps the session and offers the feedback step; a high one ends it.
func (t *RatingTracker) SubmitRating(ctx context.Context, cb domain.Callback, rating int) {
	var messageID int64
	t.sessions.Compute(cb.ChatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if !ok {
			return s, false
		}
		messageID = s.PendingMessageID
		if rating < 4 {
			s.Rating = rating
			return s, true
		}
		s.stopTimer()
		return nil, false
	})

	if messageID != 0 {
		t.saveRating(ctx, domain.Rating{MessageID: messageID, UserID: cb.UserID, Rating: rating})
	} else {
		t.logger.Debug("Rating without a pending message", "chat_id", cb.ChatID, "rating", rating)
	}

	if rating < 4 {
		t.edit(ctx, cb, fmt.Sprintf(textRatingLowFormat, rating), domain.ControlFeedback)
	} else {
		t.edit(ctx, cb, fmt.Sprintf(textRatingHighFormat, rating), domain.ControlNone)
	}
	t.answer(ctx, cb)
}

// Skip drops the chat's session without storing a rating
func (t *RatingTracker) Skip(ctx context.Context, cb domain.Callback) {
	t.remove(cb.ChatID)
	t.edit(ctx, cb, textRatingSkipped, domain.ControlNone)
	t.answer(ctx, cb)
}

// RequestFeedback switches the chat to waiting for a feedback message. A chat
// without a session gets one so the next text is still taken as feedback.
// The wait always gets a full expiry window of its own.
func (t *RatingTracker) RequestFeedback(ctx context.Context, cb domain.Callback) {
	now := t.clock.Now()
	t.sessions.Compute(cb.ChatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if !ok {
			s = &RatingSession{}
		}
		cur := s
		s.stopTimer()
		s.timer = t.clock.AfterFunc(t.expiry, func() { t.expire(cb.ChatID, cur) })
		s.LastActivity = now
		s.AwaitingFeedback = true
		return s, true
	})
	t.edit(ctx, cb, textFeedbackRequest, domain.ControlNone)
	t.answer(ctx, cb)
}

// DeclineFeedback ends the session after a low rating without feedback
func (t *RatingTracker) DeclineFeedback(ctx context.Context, cb domain.Callback) {
	t.remove(cb.ChatID)
	t.edit(ctx, cb, textFeedbackDeclined, domain.ControlNone)
	t.answer(ctx, cb)
}

// SubmitFeedback stores text as feedback for the chat's rating and ends the session
func (t *RatingTracker) SubmitFeedback(ctx context.Context, chatID, userID, text string) {
	var (
		messageID int64
		rating    int
	)
	t.sessions.Compute(chatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if ok {
			messageID = s.PendingMessageID
			rating = s.Rating
			s.stopTimer()
		}
		return nil, false
	})

	if messageID != 0 {
		feedback := text
		t.saveRating(ctx, domain.Rating{MessageID: messageID, UserID: userID, Rating: rating, Feedback: &feedback})
	} else {
		t.logger.Warn("Feedback without a pending message", "chat_id", chatID)
	}

	if _, err := t.messenger.Send(ctx, chatID, textFeedbackThanks, domain.SendOptions{}); err != nil {
		t.logger.Error("Failed to thank for feedback", "chat_id", chatID, "error", err)
	}
}

func (t *RatingTracker) remove(chatID string) {
	t.sessions.Compute(chatID, func(s *RatingSession, ok bool) (*RatingSession, bool) {
		if ok {
			s.stopTimer()
		}
		return nil, false
	})
}

func (t *RatingTracker) saveRating(ctx context.Context, r domain.Rating) {
	if err := t.ratings.AddRating(ctx, r); err != nil {
		t.logger.Error("Failed to save rating", "message_id", r.MessageID, "user_id", r.UserID, "error", err)
		return
	}
	t.logger.Info("Rating saved", "message_id", r.MessageID, "rating", r.Rating, "with_feedback", r.Feedback != nil)
}

func (t *RatingTracker) edit(ctx context.Context, cb domain.Callback, text string, control domain.ControlKind) {
	if err := t.messenger.Edit(ctx, cb.ChatID, cb.MessageID, text, domain.SendOptions{Control: control}); err != nil {
		t.logger.Error("Failed to update rating message", "chat_id", cb.ChatID, "error", err)
	}
}

func (t *RatingTracker) answer(ctx context.Context, cb domain.Callback) {
	if err := t.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		t.logger.Warn("Failed to answer callback", "callback_id", cb.ID, "error", err)
	}
}

// ParseRating extracts the score from "rate:N" callback data
func ParseRating(data string) (int, bool) {
	if !strings.HasPrefix(data, callbackRatePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(data, callbackRatePrefix))
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}
