package domain

import (
	"fmt"
	"strings"
	"time"
)

// Turn is one user message and the bot's reply to it
type Turn struct {
	UserText string    `json:"user"`
	BotText  string    `json:"bot"`
	Time     time.Time `json:"time"`
}

// LeadSession accumulates a user's turns until the user goes quiet
type LeadSession struct {
	UserID       string
	Turns        []Turn
	LastActivity time.Time
	Analyzed     bool
}

// IdleSince reports whether the session has had no activity for longer than window
func (s *LeadSession) IdleSince(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastActivity) > window
}

// LeadReport is the outcome of analysing one lead session
type LeadReport struct {
	ID         string
	UserID     string
	Analysis   string
	IsLead     bool
	AnalyzedAt time.Time
}

// ClassifyLead reports whether an analysis text signals purchase intent. Only
// an explicit no-interest marker (case-insensitive) rules a user out.
func ClassifyLead(analysis, noInterestMarker string) bool {
	if noInterestMarker == "" {
		return true
	}
	return !strings.Contains(strings.ToLower(analysis), strings.ToLower(noInterestMarker))
}

// FormatDialogue renders turns in the form the lead analyzer expects
func FormatDialogue(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(fmt.Sprintf("Пользователь [%s]: %s\n", t.Time.Format("2006-01-02 15:04:05"), t.UserText))
		sb.WriteString(fmt.Sprintf("Бот: %s\n\n", t.BotText))
	}
	return sb.String()
}
