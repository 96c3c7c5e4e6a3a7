package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibin/lead-assistant/internal/clock"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// LeadTrackerConfig holds the lead tracker timings and limits
type LeadTrackerConfig struct {
	InactivityWindow time.Duration
	SweepInterval    time.Duration
	StaleAfter       time.Duration
	AnalysisTimeout  time.Duration
	MaxTurns         int
	NoInterestMarker string
}

// SweepStats summarises one sweep
type SweepStats struct {
	Analyzed int
	Leads    int
	Removed  int
}

// LeadTracker batches each user's dialogue and, once the user goes quiet,
// has it analysed and reports likely buyers to the managers
type LeadTracker struct {
	sessions ports.SessionStore[string, *domain.LeadSession]
	clock    clock.Clock
	analyzer ports.LeadAnalyzerPort
	users    ports.UserRepositoryPort
	notifier ports.NotifierPort
	config   LeadTrackerConfig
	logger   logger.Logger
}

// NewLeadTracker creates a LeadTracker
func NewLeadTracker(
	sessions ports.SessionStore[string, *domain.LeadSession],
	clk clock.Clock,
	analyzer ports.LeadAnalyzerPort,
	users ports.UserRepositoryPort,
	notifier ports.NotifierPort,
	config LeadTrackerConfig,
	log logger.Logger,
) *LeadTracker {
	return &LeadTracker{
		sessions: sessions,
		clock:    clk,
		analyzer: analyzer,
		users:    users,
		notifier: notifier,
		config:   config,
		logger:   log.WithField("component", "lead_tracker"),
	}
}

// AppendTurn adds a question/answer pair to the user's session, starting a
// new session when none is open
func (t *LeadTracker) AppendTurn(userID, userText, botText string) {
	now := t.clock.Now()
	turn := domain.Turn{UserText: userText, BotText: botText, Time: now}

	t.sessions.Compute(userID, func(s *domain.LeadSession, ok bool) (*domain.LeadSession, bool) {
		if !ok || s.Analyzed || s.IdleSince(now, t.config.InactivityWindow) {
			s = &domain.LeadSession{UserID: userID}
		}
		s.Turns = append(s.Turns, turn)
		if limit := t.config.MaxTurns; limit > 0 && len(s.Turns) > limit {
			s.Turns = append([]domain.Turn(nil), s.Turns[len(s.Turns)-limit:]...)
		}
		s.LastActivity = now
		return s, true
	})
}

// Len returns the number of sessions held
func (t *LeadTracker) Len() int {
	return t.sessions.Len()
}

// Run sweeps every SweepInterval until ctx is cancelled
func (t *LeadTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	t.logger.Info("Lead sweep started", "interval", t.config.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Lead sweep stopped")
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *LeadTracker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Lead sweep panicked", "panic", r)
		}
	}()
	stats := t.SweepOnce(ctx)
	if stats.Analyzed > 0 || stats.Removed > 0 {
		t.logger.Info("Lead sweep finished", "analyzed", stats.Analyzed, "leads", stats.Leads, "removed", stats.Removed)
	}
}

// SweepOnce analyses every idle session once and drops analysed and stale ones
func (t *LeadTracker) SweepOnce(ctx context.Context) SweepStats {
	var stats SweepStats

	for _, claim := range t.claimIdle() {
		stats.Analyzed++
		if t.process(ctx, claim) {
			stats.Leads++
		}
	}

	now := t.clock.Now()
	stats.Removed = t.sessions.DeleteFunc(func(_ string, s *domain.LeadSession) bool {
		return s.Analyzed || now.Sub(s.LastActivity) > t.config.StaleAfter
	})
	return stats
}

type leadClaim struct {
	userID string
	turns  []domain.Turn
}

// claimIdle marks idle sessions analysed and returns their turns. Marking
// happens under the store lock so a session is handed out only once.
func (t *LeadTracker) claimIdle() []leadClaim {
	now := t.clock.Now()

	var keys []string
	t.sessions.Range(func(userID string, _ *domain.LeadSession) bool {
		keys = append(keys, userID)
		return true
	})

	var claims []leadClaim
	for _, userID := range keys {
		t.sessions.Compute(userID, func(s *domain.LeadSession, ok bool) (*domain.LeadSession, bool) {
			if !ok {
				return s, false
			}
			if s.Analyzed || !s.IdleSince(now, t.config.InactivityWindow) {
				return s, true
			}
			s.Analyzed = true
			claims = append(claims, leadClaim{
				userID: userID,
				turns:  append([]domain.Turn(nil), s.Turns...),
			})
			return s, true
		})
	}
	return claims
}

// process analyses one claimed session and notifies the managers about a lead.
// It reports whether the user was classified as a lead.
func (t *LeadTracker) process(ctx context.Context, claim leadClaim) (isLead bool) {
	log := t.logger.WithField("user_id", claim.userID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Lead analysis panicked", "panic", r)
			isLead = false
		}
	}()

	if len(claim.turns) == 0 {
		log.Debug("Empty session skipped")
		return false
	}

	actx, cancel := context.WithTimeout(ctx, t.config.AnalysisTimeout)
	defer cancel()

	analysis, err := t.analyzer.Analyze(actx, claim.turns)
	if err != nil {
		log.Error("Lead analysis failed", "turns", len(claim.turns), "error", err)
		return false
	}

	report := domain.LeadReport{
		ID:         uuid.NewString(),
		UserID:     claim.userID,
		Analysis:   strings.TrimSpace(analysis),
		IsLead:     domain.ClassifyLead(analysis, t.config.NoInterestMarker),
		AnalyzedAt: t.clock.Now(),
	}
	if !report.IsLead {
		log.Info("User shows no purchase interest", "report_id", report.ID)
		return false
	}

	log.Info("Lead detected", "report_id", report.ID)
	if err := t.notifier.NotifyManager(ctx, t.formatLead(ctx, report)); err != nil {
		log.Error("Lead notification failed", "report_id", report.ID, "error", err)
	}
	return true
}

func (t *LeadTracker) formatLead(ctx context.Context, report domain.LeadReport) string {
	user, err := t.users.GetUser(ctx, report.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			t.logger.Warn("Failed to load user profile", "user_id", report.UserID, "error", err)
		}
		user = &domain.User{UserID: report.UserID}
	}

	var sb strings.Builder
	sb.WriteString("🔍 НОВЫЙ ПОТЕНЦИАЛЬНЫЙ КЛИЕНТ\n\n")
	fmt.Fprintf(&sb, "🆔 Отчёт: %s\n", report.ID)
	fmt.Fprintf(&sb, "👤 Пользователь: @%s (%s)\n",
		orDefault(user.Username, placeholderUsername),
		strings.TrimSpace(user.FirstName+" "+user.LastName))
	fmt.Fprintf(&sb, "📱 ID: %s\n", report.UserID)
	fmt.Fprintf(&sb, "🌍 Страна: %s\n", orDefault(user.Country, placeholderCountry))
	fmt.Fprintf(&sb, "📚 Предмет: %s\n", orDefault(user.Subject, placeholderSubject))
	fmt.Fprintf(&sb, "🔎 Интересы: %s\n\n", orDefault(user.Interests, placeholderInterests))
	sb.WriteString("💬 АНАЛИЗ ДИАЛОГА:\n")
	sb.WriteString(report.Analysis)
	fmt.Fprintf(&sb, "\n\n⏰ Время анализа: %s\n", report.AnalyzedAt.Format("02.01.2006 15:04"))
	return sb.String()
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
