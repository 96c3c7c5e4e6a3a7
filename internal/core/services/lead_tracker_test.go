package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibin/lead-assistant/internal/adapters/secondary/repository"
	"github.com/vibin/lead-assistant/internal/clock"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/logger"
)

func TestAppendTurnStartsAndExtendsSession(t *testing.T) {
	clk := clock.NewFake(testStart)
	tracker := newTestLeadTracker(clk, &fakeAnalyzer{}, newFakeUsers(), &fakeNotifier{})

	tracker.AppendTurn("u1", "hi", "hello")
	clk.Advance(5 * time.Minute)
	tracker.AppendTurn("u1", "price?", "100")

	s, ok := tracker.sessions.Get("u1")
	if !ok || len(s.Turns) != 2 {
		t.Fatalf("session = %+v ok=%v, want 2 turns", s, ok)
	}
	if !s.LastActivity.Equal(testStart.Add(5 * time.Minute)) {
		t.Fatalf("LastActivity = %v", s.LastActivity)
	}

	clk.Advance(16 * time.Minute)
	tracker.AppendTurn("u1", "again", "yes")
	s, _ = tracker.sessions.Get("u1")
	if len(s.Turns) != 1 || s.Turns[0].UserText != "again" {
		t.Fatalf("idle session was not replaced: %+v", s.Turns)
	}
}

func TestAppendTurnCapsTurns(t *testing.T) {
	clk := clock.NewFake(testStart)
	tracker := newTestLeadTracker(clk, &fakeAnalyzer{}, newFakeUsers(), &fakeNotifier{})

	for i := 0; i < 55; i++ {
		tracker.AppendTurn("u1", fmt.Sprintf("q%d", i), "a")
	}
	s, _ := tracker.sessions.Get("u1")
	if len(s.Turns) != 50 {
		t.Fatalf("len(Turns) = %d, want 50", len(s.Turns))
	}
	if s.Turns[0].UserText != "q5" {
		t.Fatalf("oldest kept turn = %q, want q5", s.Turns[0].UserText)
	}
}

func TestSweepAnalyzesIdleSessionOnce(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{result: "Интерес к курсу по нейросетям"}
	notifier := &fakeNotifier{}
	tracker := newTestLeadTracker(clk, analyzer, newFakeUsers(), notifier)

	tracker.AppendTurn("u1", "how much is the course?", "100")

	clk.Advance(10 * time.Minute)
	if stats := tracker.SweepOnce(ctx); stats.Analyzed != 0 {
		t.Fatalf("active session analysed: %+v", stats)
	}

	clk.Advance(6 * time.Minute)
	stats := tracker.SweepOnce(ctx)
	if stats.Analyzed != 1 || stats.Leads != 1 || stats.Removed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		tracker.SweepOnce(ctx)
	}
	if analyzer.Calls() != 1 {
		t.Fatalf("analyzer called %d times, want 1", analyzer.Calls())
	}
	if len(notifier.Texts()) != 1 {
		t.Fatalf("notified %d times, want 1", len(notifier.Texts()))
	}
}

func TestConcurrentSweepsAnalyzeEachSessionOnce(t *testing.T) {
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{result: "lead"}
	tracker := newTestLeadTracker(clk, analyzer, newFakeUsers(), &fakeNotifier{})

	const users = 100
	for i := 0; i < users; i++ {
		tracker.AppendTurn(fmt.Sprintf("u%d", i), fmt.Sprintf("q%d", i), "a")
	}
	clk.Advance(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.SweepOnce(context.Background())
		}()
	}
	wg.Wait()

	if analyzer.Calls() != users {
		t.Fatalf("analyzer called %d times, want %d", analyzer.Calls(), users)
	}
	for q, n := range analyzer.calls {
		if n != 1 {
			t.Errorf("session %s analysed %d times", q, n)
		}
	}
	if tracker.Len() != 0 {
		t.Fatalf("Len = %d after sweeps", tracker.Len())
	}
}

func TestSweepOnEmptyStore(t *testing.T) {
	tracker := newTestLeadTracker(clock.NewFake(testStart), &fakeAnalyzer{}, newFakeUsers(), &fakeNotifier{})

	for i := 0; i < 2; i++ {
		if stats := tracker.SweepOnce(context.Background()); stats != (SweepStats{}) {
			t.Fatalf("stats = %+v on empty store", stats)
		}
	}
}

func TestSweepRemovesStaleSessionRegardlessOfAnalysis(t *testing.T) {
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{result: "lead"}
	cfg := testLeadConfig()
	cfg.InactivityWindow = 48 * time.Hour
	tracker := NewLeadTracker(
		repository.NewMemorySessionStore[string, *domain.LeadSession](),
		clk, analyzer, newFakeUsers(), &fakeNotifier{}, cfg, logger.Nop(),
	)

	tracker.AppendTurn("7", "hi", "hello")
	clk.Advance(25 * time.Hour)

	stats := tracker.SweepOnce(context.Background())
	if stats.Removed != 1 || tracker.Len() != 0 {
		t.Fatalf("stale session kept: stats=%+v len=%d", stats, tracker.Len())
	}
	if analyzer.Calls() != 0 {
		t.Fatalf("stale un-idle session analysed %d times", analyzer.Calls())
	}
}

func TestLeadClassification(t *testing.T) {
	tests := []struct {
		name     string
		analysis string
		lead     bool
	}{
		{"marker", "Нет интереса к покупке курса", false},
		{"marker lowercase inside text", "Итог: нет интереса к покупке курса.", false},
		{"interest", "Пользователь интересуется курсом по Canva", true},
		{"weak signal", "Спросил про расписание", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(testStart)
			notifier := &fakeNotifier{}
			tracker := newTestLeadTracker(clk, &fakeAnalyzer{result: tt.analysis}, newFakeUsers(), notifier)

			tracker.AppendTurn("375291112233@s.whatsapp.net", "q", "a")
			clk.Advance(20 * time.Minute)
			tracker.SweepOnce(context.Background())

			texts := notifier.Texts()
			if !tt.lead {
				if len(texts) != 0 {
					t.Fatalf("notified for non-lead: %v", texts)
				}
				return
			}
			if len(texts) != 1 {
				t.Fatalf("notified %d times, want 1", len(texts))
			}
			for _, want := range []string{"375291112233@s.whatsapp.net", tt.analysis} {
				if !strings.Contains(texts[0], want) {
					t.Errorf("notification missing %q:\n%s", want, texts[0])
				}
			}
		})
	}
}

func TestLeadNotificationProfile(t *testing.T) {
	clk := clock.NewFake(testStart)
	users := newFakeUsers()
	users.users["known"] = &domain.User{UserID: "known", Username: "anna", FirstName: "Анна", Country: "Беларусь🇧🇾", Subject: "Математика"}
	notifier := &fakeNotifier{}
	tracker := newTestLeadTracker(clk, &fakeAnalyzer{result: "lead"}, users, notifier)

	tracker.AppendTurn("known", "q", "a")
	tracker.AppendTurn("unknown", "q", "a")
	clk.Advance(20 * time.Minute)
	tracker.SweepOnce(context.Background())

	texts := notifier.Texts()
	if len(texts) != 2 {
		t.Fatalf("notified %d times, want 2", len(texts))
	}
	var known, unknown string
	for _, text := range texts {
		if strings.Contains(text, "ID: known") {
			known = text
		} else {
			unknown = text
		}
	}
	for _, want := range []string{"@anna", "Беларусь🇧🇾", "Математика", placeholderInterests, "Время анализа: 10.03.2025 12:20"} {
		if !strings.Contains(known, want) {
			t.Errorf("known user notification missing %q:\n%s", want, known)
		}
	}
	for _, want := range []string{placeholderUsername, placeholderCountry, placeholderSubject, placeholderInterests} {
		if !strings.Contains(unknown, want) {
			t.Errorf("unknown user notification missing %q:\n%s", want, unknown)
		}
	}
}

func TestFailedAnalysisIsNotRetried(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{err: errBoom}
	notifier := &fakeNotifier{}
	tracker := newTestLeadTracker(clk, analyzer, newFakeUsers(), notifier)

	tracker.AppendTurn("u1", "q", "a")
	clk.Advance(20 * time.Minute)
	stats := tracker.SweepOnce(ctx)
	tracker.SweepOnce(ctx)

	if analyzer.Calls() != 1 {
		t.Fatalf("analyzer called %d times, want 1", analyzer.Calls())
	}
	if stats.Removed != 1 || len(notifier.Texts()) != 0 {
		t.Fatalf("stats = %+v notifications = %d", stats, len(notifier.Texts()))
	}
}

func TestAnalyzerPanicDoesNotStopSweep(t *testing.T) {
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{panics: true}
	tracker := newTestLeadTracker(clk, analyzer, newFakeUsers(), &fakeNotifier{})

	tracker.AppendTurn("u1", "q1", "a")
	tracker.AppendTurn("u2", "q2", "a")
	clk.Advance(20 * time.Minute)

	stats := tracker.SweepOnce(context.Background())
	if stats.Analyzed != 2 || stats.Leads != 0 || tracker.Len() != 0 {
		t.Fatalf("stats = %+v len = %d", stats, tracker.Len())
	}
	if analyzer.Calls() != 2 {
		t.Fatalf("analyzer called %d times, want 2", analyzer.Calls())
	}
}

func TestNotifierFailureKeepsSweepGoing(t *testing.T) {
	clk := clock.NewFake(testStart)
	notifier := &fakeNotifier{err: errBoom}
	tracker := newTestLeadTracker(clk, &fakeAnalyzer{result: "lead"}, newFakeUsers(), notifier)

	tracker.AppendTurn("u1", "q1", "a")
	tracker.AppendTurn("u2", "q2", "a")
	clk.Advance(20 * time.Minute)

	stats := tracker.SweepOnce(context.Background())
	if stats.Leads != 2 || len(notifier.Texts()) != 2 {
		t.Fatalf("stats = %+v notifications = %d", stats, len(notifier.Texts()))
	}
}

func TestTurnAfterAnalysisStartsFreshSession(t *testing.T) {
	clk := clock.NewFake(testStart)
	analyzer := &fakeAnalyzer{result: "Нет интереса к покупке курса"}
	tracker := newTestLeadTracker(clk, analyzer, newFakeUsers(), &fakeNotifier{})

	tracker.AppendTurn("u1", "first", "a")
	clk.Advance(20 * time.Minute)
	tracker.SweepOnce(context.Background())

	tracker.AppendTurn("u1", "second", "b")
	s, ok := tracker.sessions.Get("u1")
	if !ok || s.Analyzed || len(s.Turns) != 1 || s.Turns[0].UserText != "second" {
		t.Fatalf("session = %+v ok=%v", s, ok)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testLeadConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	tracker := NewLeadTracker(
		repository.NewMemorySessionStore[string, *domain.LeadSession](),
		clock.NewFake(testStart), &fakeAnalyzer{}, newFakeUsers(), &fakeNotifier{}, cfg, logger.Nop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
