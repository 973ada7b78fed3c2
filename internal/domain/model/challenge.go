package model

import (
	"time"
)

type ChallengeDifficulty string
type ChallengeStatus string
type OutputNorm string

const (
	DifficultyEasy   ChallengeDifficulty = "Easy"
	DifficultyMedium ChallengeDifficulty = "Medium"
	DifficultyHard   ChallengeDifficulty = "Hard"

	StatusDraft             ChallengeStatus = "Draft"
	StatusPendingValidation ChallengeStatus = "PendingValidation"
	StatusPublished         ChallengeStatus = "Published"
	StatusRejected          ChallengeStatus = "Rejected"

	// Output comparison modes. NormTrim is the default: trailing whitespace
	// per line and the trailing newline are ignored.
	NormExact      OutputNorm = "exact"
	NormTrim       OutputNorm = "trim"
	NormWhitespace OutputNorm = "ws"
)

// Points returns the score value awarded for a fully accepted submission.
func (d ChallengeDifficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 25
	case DifficultyHard:
		return 50
	}
	return 0
}

func (d ChallengeDifficulty) Valid() bool {
	return d.Points() > 0
}

func (n OutputNorm) Valid() bool {
	return n == NormExact || n == NormTrim || n == NormWhitespace
}

type Challenge struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Slug              string              `json:"slug"`
	Description       string              `json:"description"`
	Difficulty        ChallengeDifficulty `json:"difficulty"`
	Status            ChallengeStatus     `json:"status"`
	Points            int                 `json:"points"`
	OutputNorm        OutputNorm          `json:"output_norm"`
	Language          Language            `json:"language"`
	SolutionCode      *string             `json:"solution_code,omitempty"` // Admin only view
	RuntimeLimitMs    int                 `json:"runtime_limit_ms"`
	MemoryLimitKb     int                 `json:"memory_limit_kb"`
	CreatedByID       *string             `json:"created_by_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Tags              []string            `json:"tags,omitempty"`
	Examples          []Example           `json:"examples,omitempty"`
	TestCases         []TestCase          `json:"test_cases,omitempty"` // Admin only view
	CreatedByUsername *string             `json:"created_by_username,omitempty"`
}

// Gradable reports whether the challenge can accept submissions at all.
// A challenge with no test cases or a non-positive point value is broken
// authoring data, never a user error.
func (c *Challenge) Gradable() bool {
	return c.Points > 0 && len(c.TestCases) > 0
}

// Example is a visible, illustrative input/output pair shown on the
// challenge page and used by the "run" kind.
type Example struct {
	ID             string    `json:"id"`
	ChallengeID    string    `json:"challenge_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	Explanation    *string   `json:"explanation,omitempty"`
	SortOrder      int       `json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
}

// TestCase is a grading input/output pair. Hidden cases are never shown to
// the student; only aggregate pass/fail counts surface for them.
type TestCase struct {
	ID             string    `json:"id"`
	ChallengeID    string    `json:"challenge_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	IsHidden       bool      `json:"is_hidden"`
	SortOrder      int       `json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
}
