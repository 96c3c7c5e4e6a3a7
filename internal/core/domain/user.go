package domain

import "time"

// User is a stored user profile
type User struct {
	ID                  int64     `json:"id"`
	UserID              string    `json:"user_id"`
	Username            string    `json:"username"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	Country             string    `json:"country"`
	Interests           string    `json:"interests"`
	Subject             string    `json:"subject"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	TimeAdded           time.Time `json:"time_added"`
}

// OnboardingUpdate carries the profile fields to change. Nil fields are left untouched.
type OnboardingUpdate struct {
	Country   *string
	Interests *string
	Subject   *string
	Completed bool
}

// Segment filters users for a broadcast. Empty fields match everyone.
type Segment struct {
	Country   string `json:"country,omitempty"`
	Interests string `json:"interests,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

// Segments lists the distinct profile values present in the store
type Segments struct {
	Countries []string `json:"countries"`
	Subjects  []string `json:"subjects"`
	Interests []string `json:"interests"`
}

// Rating is a stored answer rating
type Rating struct {
	MessageID int64
	UserID    string
	Rating    int
	Feedback  *string
}

// RatingStats summarises stored ratings
type RatingStats struct {
	TotalCount   int         `json:"total_count"`
	AvgRating    float64     `json:"avg_rating"`
	Distribution map[int]int `json:"distribution"`
}
