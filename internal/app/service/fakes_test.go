package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/executor"
	"codequest/internal/runner"
	"codequest/internal/verdict"
)

type memChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*model.Challenge
	examples   map[string][]model.Example
	cases      map[string][]model.TestCase
	tags       map[string][]string
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{
		challenges: map[string]*model.Challenge{},
		examples:   map[string][]model.Example{},
		cases:      map[string][]model.TestCase{},
		tags:       map[string][]string{},
	}
}

func (r *memChallengeRepo) CreateChallenge(ctx context.Context, tx *sql.Tx, c *model.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.challenges {
		if existing.Slug == c.Slug {
			return fmt.Errorf("duplicate slug: %w", common.ErrConflict)
		}
	}
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *memChallengeRepo) UpdateChallengeStatus(ctx context.Context, tx *sql.Tx, id string, status model.ChallengeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return common.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *memChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memChallengeRepo) FindBySlug(ctx context.Context, slug string) (*model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memChallengeRepo) ListChallenges(ctx context.Context, limit, offset int, difficulty model.ChallengeDifficulty, tag string, status model.ChallengeStatus) ([]model.Challenge, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Challenge
	for _, c := range r.challenges {
		if status != "" && c.Status != status {
			continue
		}
		if difficulty != "" && c.Difficulty != difficulty {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *memChallengeRepo) AddExamples(ctx context.Context, tx *sql.Tx, challengeID string, examples []model.Example) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examples[challengeID] = append(r.examples[challengeID], examples...)
	return nil
}

func (r *memChallengeRepo) GetExamples(ctx context.Context, challengeID string) ([]model.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Example(nil), r.examples[challengeID]...), nil
}

func (r *memChallengeRepo) AddTestCases(ctx context.Context, tx *sql.Tx, challengeID string, cases []model.TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[challengeID] = append(r.cases[challengeID], cases...)
	return nil
}

func (r *memChallengeRepo) GetTestCases(ctx context.Context, challengeID string) ([]model.TestCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TestCase(nil), r.cases[challengeID]...), nil
}

func (r *memChallengeRepo) SetTags(ctx context.Context, tx *sql.Tx, challengeID string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[challengeID] = tags
	return nil
}

func (r *memChallengeRepo) GetTags(ctx context.Context, challengeID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tags[challengeID]...), nil
}

type memSubmissionRepo struct {
	mu      sync.Mutex
	subs    map[string]*model.Submission
	results map[string][]model.CaseResult
}

func newMemSubmissionRepo() *memSubmissionRepo {
	return &memSubmissionRepo{subs: map[string]*model.Submission{}, results: map[string][]model.CaseResult{}}
}

func (r *memSubmissionRepo) Create(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.CreatedAt = time.Now()
	r.subs[s.ID] = &cp
	return nil
}

func (r *memSubmissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubmissionRepo) UpdateState(ctx context.Context, tx *sql.Tx, id string, state model.SubmissionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.State.Terminal() {
		return fmt.Errorf("submission %s is already terminal: %w", id, common.ErrConflict)
	}
	s.State = state
	return nil
}

func (r *memSubmissionRepo) Complete(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[sub.ID]
	if !ok {
		return common.ErrNotFound
	}
	if s.State.Terminal() {
		return fmt.Errorf("submission %s is already terminal: %w", sub.ID, common.ErrConflict)
	}
	s.State = sub.State
	s.Verdict = sub.Verdict
	s.Score = sub.Score
	s.PassedCount = sub.PassedCount
	s.TotalCount = sub.TotalCount
	return nil
}

func (r *memSubmissionRepo) CreateCaseResults(ctx context.Context, tx *sql.Tx, results []model.CaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cr := range results {
		r.results[cr.SubmissionID] = append(r.results[cr.SubmissionID], cr)
	}
	return nil
}

func (r *memSubmissionRepo) GetCaseResults(ctx context.Context, submissionID string) ([]model.CaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.CaseResult(nil), r.results[submissionID]...), nil
}

func (r *memSubmissionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Submission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, s := range r.subs {
		if s.UserID == userID && s.Kind == model.KindSubmit {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (r *memSubmissionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type memProgressRepo struct {
	mu          sync.Mutex
	progress    map[string]*model.ChallengeProgress
	drafts      map[string]*model.Draft
	upsertCalls int
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{progress: map[string]*model.ChallengeProgress{}, drafts: map[string]*model.Draft{}}
}

func progressKey(userID, challengeID string) string { return userID + "/" + challengeID }

func (r *memProgressRepo) Get(ctx context.Context, userID, challengeID string) (*model.ChallengeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[progressKey(userID, challengeID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProgressRepo) Upsert(ctx context.Context, tx *sql.Tx, userID, challengeID string, state model.ProgressState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	key := progressKey(userID, challengeID)
	if p, ok := r.progress[key]; ok {
		if p.State == model.ProgressCompleted {
			return nil
		}
		p.State = state
		return nil
	}
	r.progress[key] = &model.ChallengeProgress{UserID: userID, ChallengeID: challengeID, State: state}
	return nil
}

func (r *memProgressRepo) ListByUser(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChallengeProgress
	for _, p := range r.progress {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProgressRepo) SaveDraft(ctx context.Context, userID, challengeID string, lang model.Language, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey(userID, challengeID)
	if d, ok := r.drafts[key]; ok && d.Code == code && d.Language == lang {
		return false, nil
	}
	r.drafts[key] = &model.Draft{UserID: userID, ChallengeID: challengeID, Language: lang, Code: code}
	return true, nil
}

func (r *memProgressRepo) GetDraft(ctx context.Context, userID, challengeID string) (*model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[progressKey(userID, challengeID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memProgressRepo) stateOf(userID, challengeID string) model.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.progress[progressKey(userID, challengeID)]; ok {
		return p.State
	}
	return model.ProgressNotStarted
}

// fakeEvaluator answers Evaluate from a scripted function.
type fakeEvaluator struct {
	fn func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error)
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
	return f.fn(ctx, ch, code, lang, cases)
}

// passEvaluator grades every case as passed.
func passEvaluator() *fakeEvaluator {
	return &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		outcomes := gradedOutcomes(cases, len(cases))
		return outcomes, verdict.Score(ch.Points, outcomes), nil
	}}
}

// gradedOutcomes marks the first nPass cases as passed and the rest as
// wrong answers.
func gradedOutcomes(cases []runner.Case, nPass int) []runner.Outcome {
	outcomes := make([]runner.Outcome, len(cases))
	for i, c := range cases {
		passed := i < nPass
		actual := c.Expected
		if !passed {
			actual = "wrong"
		}
		outcomes[i] = runner.Outcome{
			Case:   c,
			Exec:   executor.ExecutionResult{Status: executor.StatusSuccess, Stdout: actual},
			Actual: actual,
			Passed: passed,
		}
	}
	return outcomes
}

type fakeProbe struct{ saturated bool }

func (f *fakeProbe) Saturated() bool { return f.saturated }
