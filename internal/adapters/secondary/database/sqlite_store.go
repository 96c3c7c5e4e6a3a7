package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
)

const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore persists users, messages and ratings
type SQLiteStore struct {
	db    *sql.DB
	mutex sync.RWMutex
	now   func() time.Time
}

var _ ports.RepositoryPort = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := NewSQLiteStore(db)
	if err := store.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database without touching the schema
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// createSchema creates the tables if they don't exist
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT UNIQUE NOT NULL,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			country TEXT,
			interests TEXT,
			subject TEXT,
			onboarding_completed BOOLEAN NOT NULL DEFAULT 0,
			time_added TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			message_text TEXT,
			response_text TEXT,
			time_added TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			rating INTEGER,
			feedback TEXT,
			time_added TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ratings_message_user ON ratings(message_id, user_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return s.now().Format(timeLayout)
}

// AddUser inserts the user unless the user id is already known
func (s *SQLiteStore) AddUser(ctx context.Context, user *domain.User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (user_id, username, first_name, last_name, time_added)
		VALUES (?, ?, ?, ?, ?)`,
		user.UserID, user.Username, user.FirstName, user.LastName, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("add user %s: %w", user.UserID, err)
	}
	return nil
}

const userColumns = `id, user_id, username, first_name, last_name, country, interests, subject, onboarding_completed, time_added`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user                                                  domain.User
		username, first, last, country, interests, subject, t sql.NullString
	)
	if err := row.Scan(&user.ID, &user.UserID, &username, &first, &last, &country, &interests, &subject, &user.OnboardingCompleted, &t); err != nil {
		return nil, err
	}
	user.Username = username.String
	user.FirstName = first.String
	user.LastName = last.String
	user.Country = country.String
	user.Interests = interests.String
	user.Subject = subject.String
	if t.Valid {
		if parsed, err := time.ParseInLocation(timeLayout, t.String, time.Local); err == nil {
			user.TimeAdded = parsed
		}
	}
	return &user, nil
}

// GetUser returns the stored profile or domain.ErrUserNotFound
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return user, nil
}

// UpdateUserOnboarding writes the non-nil profile fields
func (s *SQLiteStore) UpdateUserOnboarding(ctx context.Context, userID string, update domain.OnboardingUpdate) (bool, error) {
	var (
		parts []string
		args  []any
	)
	if update.Country != nil {
		parts = append(parts, "country = ?")
		args = append(args, *update.Country)
	}
	if update.Interests != nil {
		parts = append(parts, "interests = ?")
		args = append(args, *update.Interests)
	}
	if update.Subject != nil {
		parts = append(parts, "subject = ?")
		args = append(args, *update.Subject)
	}
	if update.Completed {
		parts = append(parts, "onboarding_completed = 1")
	}
	if len(parts) == 0 {
		return false, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	args = append(args, userID)
	_, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(parts, ", ")+` WHERE user_id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update onboarding for %s: %w", userID, err)
	}
	return true, nil
}

// OnboardingCompleted reports whether the user finished onboarding. Unknown users have not.
func (s *SQLiteStore) OnboardingCompleted(ctx context.Context, userID string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var completed bool
	err := s.db.QueryRowContext(ctx, `SELECT onboarding_completed FROM users WHERE user_id = ?`, userID).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("onboarding status for %s: %w", userID, err)
	}
	return completed, nil
}

// AddMessage stores a question and its answer and returns the row id
func (s *SQLiteStore) AddMessage(ctx context.Context, userID, messageText, responseText string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, message_text, response_text, time_added)
		VALUES (?, ?, ?, ?)`,
		userID, messageText, responseText, s.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	return result.LastInsertId()
}

// AddRating inserts the rating or updates the row for the same message and user
func (s *SQLiteStore) AddRating(ctx context.Context, rating domain.Rating) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var feedback sql.NullString
	if rating.Feedback != nil {
		feedback = sql.NullString{String: *rating.Feedback, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (message_id, user_id, rating, feedback, time_added)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id, user_id) DO UPDATE SET
			rating = excluded.rating,
			feedback = excluded.feedback,
			time_added = excluded.time_added`,
		rating.MessageID, rating.UserID, rating.Rating, feedback, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("add rating for message %d: %w", rating.MessageID, err)
	}
	return nil
}

func (s *SQLiteStore) count(ctx context.Context, table string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// CountUsers returns the number of users
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "users")
}

// CountMessages returns the number of stored messages
func (s *SQLiteStore) CountMessages(ctx context.Context) (int, error) {
	return s.count(ctx, "messages")
}

// RatingStats returns the count, the average rounded to two places and the distribution
func (s *SQLiteStore) RatingStats(ctx context.Context) (*domain.RatingStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := &domain.RatingStats{Distribution: map[int]int{}}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(rating) FROM ratings`).Scan(&stats.TotalCount, &avg); err != nil {
		return nil, fmt.Errorf("rating totals: %w", err)
	}
	if avg.Valid {
		stats.AvgRating = math.Round(avg.Float64*100) / 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rating, COUNT(*) FROM ratings GROUP BY rating ORDER BY rating`)
	if err != nil {
		return nil, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, err
		}
		stats.Distribution[rating] = n
	}
	return stats, rows.Err()
}

// ListUsers returns all users, newest first
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY time_added DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListUserIDs returns every user id
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids, err := s.queryStrings(ctx, `SELECT user_id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// UsersBySegment returns the ids of users matching every non-empty segment field.
// Interests match as a substring.
func (s *SQLiteStore) UsersBySegment(ctx context.Context, segment domain.Segment) ([]string, error) {
	query := `SELECT user_id FROM users WHERE 1=1`
	var args []any
	if segment.Country != "" {
		query += ` AND country = ?`
		args = append(args, segment.Country)
	}
	if segment.Interests != "" {
		query += ` AND interests LIKE ?`
		args = append(args, "%"+segment.Interests+"%")
	}
	if segment.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, segment.Subject)
	}
	query += ` ORDER BY id`

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids, err := s.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users by segment: %w", err)
	}
	return ids, nil
}

// AvailableSegments lists the distinct countries, subjects and interests.
// Comma-separated interests are split.
func (s *SQLiteStore) AvailableSegments(ctx context.Context) (*domain.Segments, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	countries, err := s.queryStrings(ctx, `SELECT DISTINCT country FROM users WHERE country IS NOT NULL AND country != '' ORDER BY country`)
	if err != nil {
		return nil, fmt.Errorf("segment countries: %w", err)
	}
	subjects, err := s.queryStrings(ctx, `SELECT DISTINCT subject FROM users WHERE subject IS NOT NULL AND subject != '' ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("segment subjects: %w", err)
	}
	rawInterests, err := s.queryStrings(ctx, `SELECT DISTINCT interests FROM users WHERE interests IS NOT NULL AND interests != ''`)
	if err != nil {
		return nil, fmt.Errorf("segment interests: %w", err)
	}

	seen := map[string]bool{}
	interests := []string{}
	for _, raw := range rawInterests {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !seen[part] {
				seen[part] = true
				interests = append(interests, part)
			}
		}
	}
	sort.Strings(interests)

	if countries == nil {
		countries = []string{}
	}
	if subjects == nil {
		subjects = []string{}
	}
	return &domain.Segments{Countries: countries, Subjects: subjects, Interests: interests}, nil
}

// DeleteUser removes the user's ratings, messages and profile in one transaction
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete user %s: %w", userID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ratings WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("delete ratings of %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("delete messages of %s: %w", userID, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user %s: %w", userID, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete of %s: %w", userID, err)
	}
	return removed, nil
}
