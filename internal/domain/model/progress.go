package model

import "time"

type ProgressState string

const (
	ProgressNotStarted ProgressState = "NotStarted"
	ProgressInProgress ProgressState = "InProgress"
	ProgressCompleted  ProgressState = "Completed"
)

// rank orders progress states; transitions never move down.
func (p ProgressState) rank() int {
	switch p {
	case ProgressInProgress:
		return 1
	case ProgressCompleted:
		return 2
	}
	return 0
}

// AllowedTransition reports whether moving to next keeps progress monotonic.
func (p ProgressState) AllowedTransition(next ProgressState) bool {
	return next.rank() >= p.rank()
}

// ChallengeProgress is the per-user, per-challenge completion state machine.
// It is owned exclusively by the session service.
type ChallengeProgress struct {
	UserID      string        `json:"user_id"`
	ChallengeID string        `json:"challenge_id"`
	State       ProgressState `json:"state"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Draft is the last saved editor content for a (user, challenge) pair.
type Draft struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	Language    Language  `json:"language"`
	Code        string    `json:"code"`
	UpdatedAt   time.Time `json:"updated_at"`
}
