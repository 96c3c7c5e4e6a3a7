package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// Stats is the admin overview
type Stats struct {
	Users          int                 `json:"users"`
	Messages       int                 `json:"messages"`
	Ratings        *domain.RatingStats `json:"ratings"`
	RatingSessions int                 `json:"rating_sessions"`
	LeadSessions   int                 `json:"lead_sessions"`
}

var (
	digitsPattern = regexp.MustCompile(`^[0-9]{5,20}$`)
	jidPattern    = regexp.MustCompile(`^[0-9]{5,20}(:[0-9]+)?@s\.whatsapp\.net$`)
)

// AdminService backs the admin API
type AdminService struct {
	repo      ports.AdminRepositoryPort
	messenger ports.MessengerPort
	ratings   *RatingTracker
	leads     *LeadTracker
	logger    logger.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(repo ports.AdminRepositoryPort, messenger ports.MessengerPort, ratings *RatingTracker, leads *LeadTracker, log logger.Logger) *AdminService {
	return &AdminService{
		repo:      repo,
		messenger: messenger,
		ratings:   ratings,
		leads:     leads,
		logger:    log.WithField("component", "admin"),
	}
}

// Stats collects user, message and rating counters
func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	messages, err := s.repo.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	ratings, err := s.repo.RatingStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("rating stats: %w", err)
	}
	return &Stats{
		Users:          users,
		Messages:       messages,
		Ratings:        ratings,
		RatingSessions: s.ratings.Len(),
		LeadSessions:   s.leads.Len(),
	}, nil
}

// ListUsers returns every stored user
func (s *AdminService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListUsers(ctx)
}

// Segments returns the profile values a broadcast can target
func (s *AdminService) Segments(ctx context.Context) (*domain.Segments, error) {
	return s.repo.AvailableSegments(ctx)
}

// Broadcast resolves the segment's users and sends text to each of them in the
// background. It returns the number of recipients.
func (s *AdminService) Broadcast(ctx context.Context, segment domain.Segment, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("broadcast text is empty")
	}

	var (
		recipients []string
		err        error
	)
	if segment == (domain.Segment{}) {
		recipients, err = s.repo.ListUserIDs(ctx)
	} else {
		recipients, err = s.repo.UsersBySegment(ctx, segment)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve recipients: %w", err)
	}

	go s.deliver(context.WithoutCancel(ctx), recipients, text)
	return len(recipients), nil
}

func (s *AdminService) deliver(ctx context.Context, recipients []string, text string) {
	sent, failed := 0, 0
	for _, userID := range recipients {
		if _, err := s.messenger.Send(ctx, userID, text, domain.SendOptions{}); err != nil {
			s.logger.Warn("Broadcast message failed", "user_id", userID, "error", err)
			failed++
			continue
		}
		sent++
	}
	s.logger.Info("Broadcast finished", "sent", sent, "failed", failed)
}

// NormalizeUserID accepts a phone number or a full user JID
func NormalizeUserID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case digitsPattern.MatchString(raw):
		return raw + "@s.whatsapp.net", nil
	case jidPattern.MatchString(raw):
		return raw, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidUserID, raw)
	}
}

// DeleteUser removes a user with all their messages and ratings
func (s *AdminService) DeleteUser(ctx context.Context, raw string) error {
	userID, err := NormalizeUserID(raw)
	if err != nil {
		return err
	}
	removed, err := s.repo.DeleteUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if removed == 0 {
		return domain.ErrUserNotFound
	}
	s.logger.Info("User deleted", "user_id", userID, "rows", removed)
	return nil
}
