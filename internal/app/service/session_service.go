package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
	"codequest/internal/executor"
	"codequest/internal/runner"
	"codequest/internal/verdict"
)

// PoolProbe is the slice of the executor pool the session service needs to
// apply backpressure before any durable state is created.
type PoolProbe interface {
	Saturated() bool
}

// SessionService owns the lifecycle of one challenge attempt: drafts, the
// at-most-one-in-flight rule, run vs submit semantics, and every
// ChallengeProgress mutation in the system.
type SessionService struct {
	challengeRepo  repository.ChallengeRepository
	submissionRepo repository.SubmissionRepository
	progressRepo   repository.ProgressRepository
	evaluator      Evaluator
	testGen        *TestGenService
	locks          *evalLock
	pool           PoolProbe
	db             *sql.DB
	rdb            *redis.Client
	queueName      string
	waitTimeout    time.Duration
	log            *zap.Logger

	// waiters deliver a worker-completed submission back to the HTTP
	// caller blocked in Submit; cancels hard-stop a running evaluation;
	// releases hold the (user, challenge) lock of each in-flight
	// submission until it reaches a terminal state.
	waiters  *xsync.MapOf[string, chan *model.Submission]
	cancels  *xsync.MapOf[string, context.CancelFunc]
	releases *xsync.MapOf[string, func()]
}

type SessionConfig struct {
	QueueName       string
	LockKeyPrefix   string
	LockTTLSeconds  int
	EvalWaitSeconds int
}

func NewSessionService(
	challengeRepo repository.ChallengeRepository,
	submissionRepo repository.SubmissionRepository,
	progressRepo repository.ProgressRepository,
	evaluator Evaluator,
	testGen *TestGenService,
	pool PoolProbe,
	db *sql.DB,
	rdb *redis.Client,
	cfg SessionConfig,
	log *zap.Logger,
) *SessionService {
	if cfg.EvalWaitSeconds <= 0 {
		cfg.EvalWaitSeconds = 120
	}
	return &SessionService{
		challengeRepo:  challengeRepo,
		submissionRepo: submissionRepo,
		progressRepo:   progressRepo,
		evaluator:      evaluator,
		testGen:        testGen,
		locks:          newEvalLock(rdb, cfg.LockKeyPrefix, cfg.LockTTLSeconds, log),
		pool:           pool,
		db:             db,
		rdb:            rdb,
		queueName:      cfg.QueueName,
		waitTimeout:    time.Duration(cfg.EvalWaitSeconds) * time.Second,
		log:            log,
		waiters:        xsync.NewMapOf[string, chan *model.Submission](),
		cancels:        xsync.NewMapOf[string, context.CancelFunc](),
		releases:       xsync.NewMapOf[string, func()](),
	}
}

type RunRequest struct {
	Code     string         `json:"code"`
	Language model.Language `json:"language"`
}

type RunCaseResult struct {
	Input          string        `json:"input"`
	ExpectedOutput string        `json:"expected_output"`
	ActualOutput   string        `json:"actual_output"`
	Passed         bool          `json:"passed"`
	Verdict        model.Verdict `json:"verdict"`
	TimeMs         int64         `json:"time_ms"`
}

type RunResponse struct {
	Results []RunCaseResult `json:"results"`
	Score   int             `json:"score"`
	Passed  int             `json:"passed"`
	Total   int             `json:"total"`
}

// Run grades against the visible Example set only. Nothing is persisted and
// ChallengeProgress can only move NotStarted -> InProgress, never Completed.
func (s *SessionService) Run(ctx context.Context, userID, challengeSlug string, req RunRequest) (*RunResponse, error) {
	challenge, cases, err := s.loadForRun(ctx, challengeSlug, req.Language)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, userID, challenge.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.pool.Saturated() {
		return nil, fmt.Errorf("try again shortly: %w", common.ErrBusy)
	}

	if err := s.progressRepo.Upsert(ctx, nil, userID, challenge.ID, model.ProgressInProgress); err != nil {
		return nil, err
	}

	outcomes, res, err := s.evaluator.Evaluate(ctx, challenge, req.Code, req.Language, cases)
	if err != nil {
		return nil, s.mapEvalError(err)
	}

	out := &RunResponse{Score: res.Score, Passed: res.Passed, Total: res.Total}
	for _, o := range outcomes {
		out.Results = append(out.Results, RunCaseResult{
			Input:          o.Case.Input,
			ExpectedOutput: o.Case.Expected,
			ActualOutput:   o.Actual,
			Passed:         o.Passed,
			Verdict:        verdict.CaseVerdict(o),
			TimeMs:         o.Exec.TimeMs,
		})
	}
	return out, nil
}

// Submit grades against the full test case set and persists the outcome.
// The evaluation itself travels through the Redis queue to the worker; the
// caller blocks here until the terminal result comes back, observing one
// synchronous logical operation.
func (s *SessionService) Submit(ctx context.Context, userID, challengeSlug string, req RunRequest) (*model.Submission, error) {
	challenge, err := s.loadGradable(ctx, challengeSlug, req.Language)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, userID, challenge.ID)
	if err != nil {
		return nil, err
	}

	// Backpressure before any durable state: a saturated pool rejects the
	// call and no submission record is created.
	if s.pool.Saturated() {
		release()
		return nil, fmt.Errorf("try again shortly: %w", common.ErrBusy)
	}

	sub := &model.Submission{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		Language:    req.Language,
		Code:        req.Code,
		Kind:        model.KindSubmit,
		State:       model.StatePending,
	}
	if err := s.submissionRepo.Create(ctx, nil, sub); err != nil {
		release()
		return nil, err
	}
	// The lock now belongs to the evaluation, not to this request: it is
	// freed when the submission reaches a terminal state, even if the
	// caller times out or disconnects first.
	s.releases.Store(sub.ID, release)

	if err := s.progressRepo.Upsert(ctx, nil, userID, challenge.ID, model.ProgressInProgress); err != nil {
		s.releaseLock(sub.ID)
		return nil, err
	}

	waitCh := make(chan *model.Submission, 1)
	s.waiters.Store(sub.ID, waitCh)
	defer s.waiters.Delete(sub.ID)

	if s.rdb != nil {
		if err := s.rdb.RPush(ctx, s.queueName, sub.ID).Err(); err != nil {
			_ = s.submissionRepo.UpdateState(ctx, nil, sub.ID, model.StateFailed)
			s.releaseLock(sub.ID)
			return nil, fmt.Errorf("failed to enqueue submission: %w", common.ErrInfrastructure)
		}
	} else {
		go func() {
			if err := s.ProcessSubmission(context.Background(), sub.ID); err != nil {
				s.log.Error("inline evaluation failed", zap.String("submission_id", sub.ID), zap.Error(err))
			}
		}()
	}

	select {
	case done := <-waitCh:
		return done, nil
	case <-time.After(s.waitTimeout):
		// The worker keeps grading; the lock stays held until it lands.
		return nil, fmt.Errorf("evaluation did not finish in time: %w", common.ErrInfrastructure)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessSubmission drives one queued submission to a terminal state. It is
// called by the evaluation worker and is safe to call again for a
// submission that already finished.
func (s *SessionService) ProcessSubmission(ctx context.Context, submissionID string) error {
	defer s.releaseLock(submissionID)

	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.State.Terminal() {
		s.deliver(sub)
		return nil
	}

	challenge, err := s.challengeRepo.FindByID(ctx, sub.ChallengeID)
	if err != nil {
		return s.failSubmission(ctx, sub, err)
	}
	tcs, err := s.challengeRepo.GetTestCases(ctx, challenge.ID)
	if err != nil {
		return s.failSubmission(ctx, sub, err)
	}
	challenge.TestCases = tcs
	if !challenge.Gradable() {
		return s.failSubmission(ctx, sub, common.ErrInvalidChallenge)
	}

	if err := s.submissionRepo.UpdateState(ctx, nil, sub.ID, model.StateRunning); err != nil {
		// Cancelled between dequeue and start; nothing left to do.
		if errors.Is(err, common.ErrConflict) {
			if cur, gerr := s.submissionRepo.GetByID(ctx, sub.ID); gerr == nil {
				s.deliver(cur)
			}
			return nil
		}
		return err
	}

	evalCtx, cancel := context.WithCancel(ctx)
	s.cancels.Store(sub.ID, cancel)
	defer func() {
		s.cancels.Delete(sub.ID)
		cancel()
	}()

	outcomes, res, err := s.evaluator.Evaluate(evalCtx, challenge, sub.Code, sub.Language, TestCases(tcs))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = s.submissionRepo.UpdateState(ctx, nil, sub.ID, model.StateCancelled)
			if cur, gerr := s.submissionRepo.GetByID(ctx, sub.ID); gerr == nil {
				s.deliver(cur)
			}
			return nil
		}
		return s.failSubmission(ctx, sub, err)
	}

	return s.completeSubmission(ctx, sub, challenge, outcomes, res)
}

func (s *SessionService) completeSubmission(ctx context.Context, sub *model.Submission, challenge *model.Challenge, outcomes []runner.Outcome, res verdict.Result) error {
	v := res.Verdict
	sub.State = model.StateCompleted
	sub.Verdict = &v
	sub.Score = res.Score
	sub.PassedCount = res.Passed
	sub.TotalCount = res.Total

	caseResults := make([]model.CaseResult, 0, len(outcomes))
	for i, o := range outcomes {
		caseResults = append(caseResults, model.CaseResult{
			ID:             uuid.NewString(),
			SubmissionID:   sub.ID,
			TestCaseID:     o.Case.ID,
			Input:          o.Case.Input,
			ExpectedOutput: o.Case.Expected,
			ActualOutput:   o.Actual,
			Passed:         o.Passed,
			Verdict:        verdict.CaseVerdict(o),
			Hidden:         o.Case.Hidden,
			TimeMs:         o.Exec.TimeMs,
			SortOrder:      i + 1,
		})
	}

	var tx *sql.Tx
	if s.db != nil {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return s.failSubmission(ctx, sub, err)
		}
		defer tx.Rollback()
	}

	if err := s.submissionRepo.Complete(ctx, tx, sub); err != nil {
		return err
	}
	if err := s.submissionRepo.CreateCaseResults(ctx, tx, caseResults); err != nil {
		return err
	}
	if v == model.VerdictAccepted {
		if err := s.progressRepo.Upsert(ctx, tx, sub.UserID, sub.ChallengeID, model.ProgressCompleted); err != nil {
			return err
		}
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	s.log.Info("submission graded",
		zap.String("submission_id", sub.ID),
		zap.String("challenge_id", challenge.ID),
		zap.String("verdict", string(v)),
		zap.Int("score", sub.Score),
		zap.Int("passed", res.Passed),
		zap.Int("total", res.Total))

	sub.CaseResults = caseResults
	s.deliver(sub)
	return nil
}

func (s *SessionService) failSubmission(ctx context.Context, sub *model.Submission, cause error) error {
	s.log.Error("evaluation failed",
		zap.String("submission_id", sub.ID), zap.Error(cause))
	_ = s.submissionRepo.UpdateState(ctx, nil, sub.ID, model.StateFailed)
	if cur, err := s.submissionRepo.GetByID(ctx, sub.ID); err == nil {
		s.deliver(cur)
	}
	return cause
}

func (s *SessionService) deliver(sub *model.Submission) {
	if ch, ok := s.waiters.LoadAndDelete(sub.ID); ok {
		ch <- sub
	}
}

// releaseLock frees the (user, challenge) slot held by a submission once it
// stops being in flight. Calling it for a submission that holds no lock is
// a no-op.
func (s *SessionService) releaseLock(submissionID string) {
	if release, ok := s.releases.LoadAndDelete(submissionID); ok {
		release()
	}
}

// Cancel transitions a Pending/Running submission to Cancelled and
// hard-stops the underlying sandboxed processes.
func (s *SessionService) Cancel(ctx context.Context, userID, submissionID string) error {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return common.ErrForbidden
	}
	if sub.State.Terminal() {
		return fmt.Errorf("submission already finished: %w", common.ErrConflict)
	}

	if cancel, ok := s.cancels.Load(sub.ID); ok {
		cancel()
		return nil
	}
	// Not picked up by the worker yet; mark it so the worker skips it.
	return s.submissionRepo.UpdateState(ctx, nil, sub.ID, model.StateCancelled)
}

// SaveDraft stores editor content with no grading side effects. Saving the
// same code twice is a no-op the second time.
func (s *SessionService) SaveDraft(ctx context.Context, userID, challengeSlug string, lang model.Language, code string) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q: %w", lang, common.ErrBadRequest)
	}
	challenge, err := s.challengeRepo.FindBySlug(ctx, challengeSlug)
	if err != nil {
		return err
	}

	changed, err := s.progressRepo.SaveDraft(ctx, userID, challenge.ID, lang, code)
	if err != nil {
		return err
	}
	if changed {
		if err := s.progressRepo.Upsert(ctx, nil, userID, challenge.ID, model.ProgressInProgress); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) GetDraft(ctx context.Context, userID, challengeSlug string) (*model.Draft, error) {
	challenge, err := s.challengeRepo.FindBySlug(ctx, challengeSlug)
	if err != nil {
		return nil, err
	}
	return s.progressRepo.GetDraft(ctx, userID, challenge.ID)
}

// FocusLoss handles a client-reported visibility-loss event. When the user
// has no Completed result yet it asks the AI collaborator for extra
// practice inputs; the response is advisory only and nothing is stored.
func (s *SessionService) FocusLoss(ctx context.Context, userID, challengeSlug string, req RunRequest) ([]string, error) {
	challenge, err := s.challengeRepo.FindBySlug(ctx, challengeSlug)
	if err != nil {
		return nil, err
	}

	progress, err := s.progressRepo.Get(ctx, userID, challenge.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if progress != nil && progress.State == model.ProgressCompleted {
		return nil, nil
	}
	return s.testGen.GenerateTests(ctx, req.Code, req.Language, challenge.Description), nil
}

func (s *SessionService) GetSubmission(ctx context.Context, userID, userRole, submissionID string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID && userRole != model.RoleAdmin {
		return nil, common.ErrForbidden
	}
	results, err := s.submissionRepo.GetCaseResults(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	sub.CaseResults = results
	if userRole != model.RoleAdmin {
		SanitizeCaseResults(sub.CaseResults)
	}
	return sub, nil
}

func (s *SessionService) ListSubmissions(ctx context.Context, userID string, page, pageSize int) ([]model.Submission, int, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}
	return s.submissionRepo.ListByUser(ctx, userID, pageSize, offset)
}

func (s *SessionService) ListProgress(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	return s.progressRepo.ListByUser(ctx, userID)
}

// SanitizeCaseResults blanks hidden test case content so only aggregate
// pass/fail information leaves the API for those cases.
func SanitizeCaseResults(results []model.CaseResult) {
	for i := range results {
		if results[i].Hidden {
			results[i].Input = ""
			results[i].ExpectedOutput = ""
			results[i].ActualOutput = ""
		}
	}
}

func (s *SessionService) loadForRun(ctx context.Context, challengeSlug string, lang model.Language) (*model.Challenge, []runner.Case, error) {
	challenge, err := s.loadGradable(ctx, challengeSlug, lang)
	if err != nil {
		return nil, nil, err
	}
	examples, err := s.challengeRepo.GetExamples(ctx, challenge.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(examples) == 0 {
		return nil, nil, fmt.Errorf("challenge has no runnable examples: %w", common.ErrInvalidChallenge)
	}
	return challenge, ExampleCases(examples), nil
}

func (s *SessionService) loadGradable(ctx context.Context, challengeSlug string, lang model.Language) (*model.Challenge, error) {
	if !lang.Valid() {
		return nil, fmt.Errorf("unsupported language %q: %w", lang, common.ErrBadRequest)
	}
	challenge, err := s.challengeRepo.FindBySlug(ctx, challengeSlug)
	if err != nil {
		return nil, err
	}
	if challenge.Status != model.StatusPublished {
		return nil, common.ErrNotFound
	}
	if lang != challenge.Language {
		return nil, fmt.Errorf("challenge accepts %s only: %w", challenge.Language, common.ErrBadRequest)
	}
	if challenge.Points <= 0 {
		return nil, fmt.Errorf("challenge has no point value: %w", common.ErrInvalidChallenge)
	}
	tcs, err := s.challengeRepo.GetTestCases(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	if len(tcs) == 0 {
		return nil, fmt.Errorf("challenge has no test cases: %w", common.ErrInvalidChallenge)
	}
	challenge.TestCases = tcs
	return challenge, nil
}

func (s *SessionService) mapEvalError(err error) error {
	switch {
	case errors.Is(err, executor.ErrBusy):
		return fmt.Errorf("try again shortly: %w", common.ErrBusy)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.log.Error("evaluation infrastructure error", zap.Error(err))
		return fmt.Errorf("%v: %w", err, common.ErrInfrastructure)
	}
}
