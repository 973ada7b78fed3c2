package model

import "time"

type SubmissionKind string
type SubmissionState string
type Verdict string

const (
	// KindRun grades against the visible Example set only and is
	// ephemeral: no Submission row is ever stored with this kind, the
	// constant names the other half of the kind column's vocabulary.
	// KindSubmit grades against the full TestCase set and is durable.
	KindRun    SubmissionKind = "run"
	KindSubmit SubmissionKind = "submit"
)

const (
	StatePending   SubmissionState = "Pending"
	StateRunning   SubmissionState = "Running"
	StateCompleted SubmissionState = "Completed"
	StateFailed    SubmissionState = "Failed"
	StateCancelled SubmissionState = "Cancelled"
)

const (
	VerdictAccepted     Verdict = "Accepted"
	VerdictWrongAnswer  Verdict = "WrongAnswer"
	VerdictTimeout      Verdict = "TimeLimitExceeded"
	VerdictRuntimeError Verdict = "RuntimeError"
	VerdictCompileError Verdict = "CompileError"
)

// Severity orders failure verdicts for reduction across test cases:
// CompileError > RuntimeError > Timeout > WrongAnswer.
func (v Verdict) Severity() int {
	switch v {
	case VerdictCompileError:
		return 4
	case VerdictRuntimeError:
		return 3
	case VerdictTimeout:
		return 2
	case VerdictWrongAnswer:
		return 1
	}
	return 0
}

// Terminal reports whether the state admits no further transitions.
// A Completed submission is immutable.
func (s SubmissionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type Submission struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ChallengeID string          `json:"challenge_id"`
	Language    Language        `json:"language"`
	Code        string          `json:"code"`
	Kind        SubmissionKind  `json:"kind"`
	State       SubmissionState `json:"state"`
	Verdict     *Verdict        `json:"verdict,omitempty"`
	Score       int             `json:"score"`
	PassedCount int             `json:"passed_count"`
	TotalCount  int             `json:"total_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CaseResults []CaseResult    `json:"case_results,omitempty"`
}

// CaseResult is the per-test-case outcome stored with a submission. For
// hidden cases the input/expected fields are blanked before leaving the API.
type CaseResult struct {
	ID             string    `json:"id"`
	SubmissionID   string    `json:"submission_id"`
	TestCaseID     string    `json:"test_case_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	ActualOutput   string    `json:"actual_output"`
	Passed         bool      `json:"passed"`
	Verdict        Verdict   `json:"verdict"`
	Hidden         bool      `json:"hidden"`
	TimeMs         int64     `json:"time_ms"`
	SortOrder      int       `json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
}
