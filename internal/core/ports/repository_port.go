package ports

import (
	"context"

	"github.com/vibin/lead-assistant/internal/core/domain"
)

// UserRepositoryPort defines user profile persistence
type UserRepositoryPort interface {
	// AddUser inserts the user unless one with the same user id exists
	AddUser(ctx context.Context, user *domain.User) error

	// GetUser returns domain.ErrUserNotFound when absent
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpdateUserOnboarding applies the non-nil fields and reports whether anything was written
	UpdateUserOnboarding(ctx context.Context, userID string, update domain.OnboardingUpdate) (bool, error)

	// OnboardingCompleted reports whether the user finished onboarding
	OnboardingCompleted(ctx context.Context, userID string) (bool, error)
}

// MessageRepositoryPort stores question/answer pairs
type MessageRepositoryPort interface {
	// AddMessage stores a pair and returns its id
	AddMessage(ctx context.Context, userID, messageText, responseText string) (int64, error)
}

// RatingRepositoryPort stores answer ratings
type RatingRepositoryPort interface {
	// AddRating upserts the rating keyed by (message id, user id)
	AddRating(ctx context.Context, rating domain.Rating) error
}

// AdminRepositoryPort backs the admin statistics and broadcast tools
type AdminRepositoryPort interface {
	CountUsers(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)
	RatingStats(ctx context.Context) (*domain.RatingStats, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UsersBySegment(ctx context.Context, segment domain.Segment) ([]string, error)
	AvailableSegments(ctx context.Context) (*domain.Segments, error)

	// DeleteUser removes the user with their messages and ratings and returns
	// the number of user rows removed
	DeleteUser(ctx context.Context, userID string) (int64, error)
}

// RepositoryPort is the full persistence provider
type RepositoryPort interface {
	UserRepositoryPort
	MessageRepositoryPort
	RatingRepositoryPort
	AdminRepositoryPort
	Close() error
}
