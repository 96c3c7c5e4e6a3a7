package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vibin/lead-assistant/internal/adapters/secondary/repository"
	"github.com/vibin/lead-assistant/internal/clock"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/logger"
)

var testStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	ChatID string
	Text   string
	Opts   domain.SendOptions
}

type editedMessage struct {
	ChatID    string
	MessageID string
	Text      string
	Opts      domain.SendOptions
}

// fakeMessenger records traffic. sendErr maps chat ids to send failures.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	edited   []editedMessage
	answered []string
	sendErr  map[string]error
	nextID   int
	onSend   func(chatID string)
}

func (m *fakeMessenger) Send(_ context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	m.mu.Lock()
	hook := m.onSend
	if err := m.sendErr[chatID]; err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	m.mu.Unlock()

	if hook != nil {
		hook(chatID)
	}
	return id, nil
}

func (m *fakeMessenger) Edit(_ context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, editedMessage{ChatID: chatID, MessageID: messageID, Text: text, Opts: opts})
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, callbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *fakeMessenger) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *fakeMessenger) Edited() []editedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]editedMessage(nil), m.edited...)
}

func (m *fakeMessenger) sentWithControl(kind domain.ControlKind) int {
	n := 0
	for _, s := range m.Sent() {
		if s.Opts.Control == kind {
			n++
		}
	}
	return n
}

type fakeRatings struct {
	mu    sync.Mutex
	saved []domain.Rating
	err   error
}

func (r *fakeRatings) AddRating(_ context.Context, rating domain.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, rating)
	return nil
}

func (r *fakeRatings) Saved() []domain.Rating {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Rating(nil), r.saved...)
}

type fakeUsers struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	updates   []domain.OnboardingUpdate
	getErr    error
	completed map[string]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}, completed: map[string]bool{}}
}

func (u *fakeUsers) AddUser(_ context.Context, user *domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[user.UserID]; !ok {
		u.users[user.UserID] = user
	}
	return nil
}

func (u *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.getErr != nil {
		return nil, u.getErr
	}
	user, ok := u.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (u *fakeUsers) UpdateUserOnboarding(_ context.Context, userID string, update domain.OnboardingUpdate) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = append(u.updates, update)
	if update.Completed {
		u.completed[userID] = true
	}
	return true, nil
}

func (u *fakeUsers) OnboardingCompleted(_ context.Context, userID string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.completed[userID], nil
}

type fakeMessages struct {
	nextID int64
	err    error
	saved  []string
}

func (m *fakeMessages) AddMessage(_ context.Context, userID, messageText, responseText string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	m.saved = append(m.saved, messageText)
	return m.nextID, nil
}

type fakeAnswers struct {
	reply string
	err   error
}

func (a *fakeAnswers) Answer(_ context.Context, query, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.reply != "" {
		return a.reply, nil
	}
	return "answer: " + query, nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  map[string]int
	result string
	err    error
	panics bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, turns []domain.Turn) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[turns[0].UserText]++
	if a.panics {
		panic("analyzer exploded")
	}
	return a.result, a.err
}

func (a *fakeAnalyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *fakeNotifier) NotifyManager(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return n.err
}

func (n *fakeNotifier) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

var errBoom = errors.New("boom")

func newTestRatingTracker(clk clock.Clock, messenger *fakeMessenger, ratings *fakeRatings) *RatingTracker {
	return NewRatingTracker(
		repository.NewMemorySessionStore[string, *RatingSession](),
		clk, messenger, ratings,
		3*time.Minute, 10*time.Minute,
		logger.Nop(),
	)
}

func testLeadConfig() LeadTrackerConfig {
	return LeadTrackerConfig{
		InactivityWindow: 15 * time.Minute,
		SweepInterval:    time.Minute,
		StaleAfter:       24 * time.Hour,
		AnalysisTimeout:  time.Minute,
		MaxTurns:         50,
		NoInterestMarker: "Нет интереса к покупке курса",
	}
}

func newTestLeadTracker(clk clock.Clock, analyzer *fakeAnalyzer, users *fakeUsers, notifier *fakeNotifier) *LeadTracker {
	return NewLeadTracker(
		repository.NewMemorySessionStore[string, *domain.LeadSession](),
		clk, analyzer, users, notifier,
		testLeadConfig(),
		logger.Nop(),
	)
}
