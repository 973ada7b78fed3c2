package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/runner"
	"codequest/internal/verdict"
)

type sessionFixture struct {
	svc        *SessionService
	challenges *memChallengeRepo
	subs       *memSubmissionRepo
	progress   *memProgressRepo
	probe      *fakeProbe
}

func newSessionFixture(t *testing.T, eval Evaluator) *sessionFixture {
	return newSessionFixtureWait(t, eval, 10)
}

func newSessionFixtureWait(t *testing.T, eval Evaluator, waitSeconds int) *sessionFixture {
	t.Helper()
	challenges := newMemChallengeRepo()
	subs := newMemSubmissionRepo()
	progress := newMemProgressRepo()
	probe := &fakeProbe{}
	log := zap.NewNop()

	svc := NewSessionService(
		challenges, subs, progress,
		eval,
		NewTestGenService("", time.Second, log),
		probe,
		nil, nil,
		SessionConfig{LockKeyPrefix: "eval_lock:", LockTTLSeconds: 300, EvalWaitSeconds: waitSeconds},
		log,
	)
	return &sessionFixture{svc: svc, challenges: challenges, subs: subs, progress: progress, probe: probe}
}

func seedChallenge(t *testing.T, f *sessionFixture, numCases int) *model.Challenge {
	t.Helper()
	ch := &model.Challenge{
		ID:             uuid.NewString(),
		Title:          "Sum Two Numbers",
		Slug:           "sum-two-numbers",
		Description:    "Read two integers and print their sum.",
		Difficulty:     model.DifficultyEasy,
		Status:         model.StatusPublished,
		Points:         10,
		OutputNorm:     model.NormTrim,
		Language:       model.LangPython,
		RuntimeLimitMs: 2000,
		MemoryLimitKb:  262144,
	}
	require.NoError(t, f.challenges.CreateChallenge(context.Background(), nil, ch))
	require.NoError(t, f.challenges.AddExamples(context.Background(), nil, ch.ID, []model.Example{
		{ID: uuid.NewString(), Input: "1 2\n", ExpectedOutput: "3\n"},
	}))
	cases := make([]model.TestCase, numCases)
	for i := range cases {
		cases[i] = model.TestCase{ID: uuid.NewString(), Input: "1 2\n", ExpectedOutput: "3\n", IsHidden: i%2 == 1}
	}
	require.NoError(t, f.challenges.AddTestCases(context.Background(), nil, ch.ID, cases))
	return ch
}

func TestSubmitAcceptedAwardsFullPoints(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 4)

	sub, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "print(3)", Language: model.LangPython})
	require.NoError(t, err)

	assert.Equal(t, model.StateCompleted, sub.State)
	require.NotNil(t, sub.Verdict)
	assert.Equal(t, model.VerdictAccepted, *sub.Verdict)
	assert.Equal(t, 10, sub.Score)
	assert.Equal(t, 4, sub.PassedCount)
	assert.Equal(t, 4, sub.TotalCount)
	assert.Len(t, sub.CaseResults, 4)

	assert.Equal(t, model.ProgressCompleted, f.progress.stateOf("user-1", ch.ID))

	// The durable row matches what the caller saw.
	stored, err := f.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, stored.State)
	assert.Equal(t, 10, stored.Score)
}

func TestSubmitPartialPassScoresProportionally(t *testing.T) {
	eval := &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		outcomes := gradedOutcomes(cases, 2)
		return outcomes, verdict.Score(ch.Points, outcomes), nil
	}}
	f := newSessionFixture(t, eval)
	ch := seedChallenge(t, f, 4)

	sub, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.NoError(t, err)

	require.NotNil(t, sub.Verdict)
	assert.Equal(t, model.VerdictWrongAnswer, *sub.Verdict)
	assert.Equal(t, 5, sub.Score)
	assert.Equal(t, 2, sub.PassedCount)

	// A non-accepted submission never marks the challenge completed.
	assert.Equal(t, model.ProgressInProgress, f.progress.stateOf("user-1", ch.ID))
}

func TestSubmitSaturatedPoolCreatesNoRecord(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)
	f.probe.saturated = true

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBusy)
	assert.Equal(t, 0, f.subs.count())
	assert.Equal(t, model.ProgressNotStarted, f.progress.stateOf("user-1", ch.ID))
}

func TestSubmitConcurrentAttemptConflicts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eval := &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		close(started)
		<-release
		outcomes := gradedOutcomes(cases, len(cases))
		return outcomes, verdict.Score(ch.Points, outcomes), nil
	}}
	f := newSessionFixture(t, eval)
	ch := seedChallenge(t, f, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
		done <- err
	}()
	<-started

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "y", Language: model.LangPython})
	assert.ErrorIs(t, err, common.ErrConflict)

	close(release)
	require.NoError(t, <-done)
}

func TestSubmitTimeoutKeepsLockUntilEvaluationLands(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	started := make(chan struct{})
	release := make(chan struct{})
	eval := &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		outcomes := gradedOutcomes(cases, len(cases))
		return outcomes, verdict.Score(ch.Points, outcomes), nil
	}}
	f := newSessionFixtureWait(t, eval, 1)
	ch := seedChallenge(t, f, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
		done <- err
	}()
	<-started

	// The caller gives up after the wait window, but the evaluation keeps
	// going behind it.
	err := <-done
	require.ErrorIs(t, err, common.ErrInfrastructure)

	// The (user, challenge) slot is still taken by the in-flight
	// evaluation, not freed by the caller's timeout.
	_, err = f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "y", Language: model.LangPython})
	assert.ErrorIs(t, err, common.ErrConflict)

	close(release)

	// Once the first evaluation reaches a terminal state the slot opens.
	require.Eventually(t, func() bool {
		_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "z", Language: model.LangPython})
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitWrongLanguageRejected(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangCpp})
	assert.ErrorIs(t, err, common.ErrBadRequest)

	_, err = f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: "cobol"})
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestSubmitUngradableChallenge(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 0)

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	assert.ErrorIs(t, err, common.ErrInvalidChallenge)
	assert.Equal(t, 0, f.subs.count())
}

func TestSubmitCancelledMidFlight(t *testing.T) {
	started := make(chan struct{})
	eval := &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, verdict.Result{}, ctx.Err()
	}}
	f := newSessionFixture(t, eval)
	ch := seedChallenge(t, f, 2)

	type submitResult struct {
		sub *model.Submission
		err error
	}
	done := make(chan submitResult, 1)
	go func() {
		sub, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
		done <- submitResult{sub, err}
	}()
	<-started

	// Find the in-flight submission and cancel it.
	var subID string
	require.Eventually(t, func() bool {
		subs, _, _ := f.subs.ListByUser(context.Background(), "user-1", 10, 0)
		if len(subs) == 0 {
			return false
		}
		subID = subs[0].ID
		return true
	}, time.Second, time.Millisecond)
	require.NoError(t, f.svc.Cancel(context.Background(), "user-1", subID))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, model.StateCancelled, res.sub.State)
	assert.Nil(t, res.sub.Verdict)
}

func TestCancelPendingSubmission(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)

	sub := &model.Submission{ID: uuid.NewString(), UserID: "user-1", ChallengeID: ch.ID, Kind: model.KindSubmit, State: model.StatePending}
	require.NoError(t, f.subs.Create(context.Background(), nil, sub))

	require.NoError(t, f.svc.Cancel(context.Background(), "user-1", sub.ID))
	stored, err := f.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, stored.State)

	// Terminal submissions cannot be cancelled again.
	err = f.svc.Cancel(context.Background(), "user-1", sub.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	// Nor cancelled by someone else.
	err = f.svc.Cancel(context.Background(), "user-2", sub.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestRunGradesExamplesWithoutPersisting(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 3)

	resp, err := f.svc.Run(context.Background(), "user-1", ch.Slug, RunRequest{Code: "print(3)", Language: model.LangPython})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Passed)
	assert.Equal(t, model.VerdictAccepted, resp.Results[0].Verdict)
	assert.Equal(t, "1 2\n", resp.Results[0].Input)

	// Run leaves no submission and cannot complete the challenge.
	assert.Equal(t, 0, f.subs.count())
	assert.Equal(t, model.ProgressInProgress, f.progress.stateOf("user-1", ch.ID))
}

func TestRunProgressNeverRegresses(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.NoError(t, err)
	require.Equal(t, model.ProgressCompleted, f.progress.stateOf("user-1", ch.ID))

	_, err = f.svc.Run(context.Background(), "user-1", ch.Slug, RunRequest{Code: "y", Language: model.LangPython})
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, f.progress.stateOf("user-1", ch.ID))
}

func TestSaveDraftIdempotent(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)

	require.NoError(t, f.svc.SaveDraft(context.Background(), "user-1", ch.Slug, model.LangPython, "print(1)"))
	assert.Equal(t, model.ProgressInProgress, f.progress.stateOf("user-1", ch.ID))
	callsAfterFirst := f.progress.upsertCalls

	// Saving identical content again touches nothing.
	require.NoError(t, f.svc.SaveDraft(context.Background(), "user-1", ch.Slug, model.LangPython, "print(1)"))
	assert.Equal(t, callsAfterFirst, f.progress.upsertCalls)

	draft, err := f.svc.GetDraft(context.Background(), "user-1", ch.Slug)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", draft.Code)

	// Changed content updates the draft.
	require.NoError(t, f.svc.SaveDraft(context.Background(), "user-1", ch.Slug, model.LangPython, "print(2)"))
	draft, err = f.svc.GetDraft(context.Background(), "user-1", ch.Slug)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", draft.Code)
}

func TestCompletedProgressSurvivesFailedResubmit(t *testing.T) {
	pass := true
	eval := &fakeEvaluator{fn: func(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
		n := 0
		if pass {
			n = len(cases)
		}
		outcomes := gradedOutcomes(cases, n)
		return outcomes, verdict.Score(ch.Points, outcomes), nil
	}}
	f := newSessionFixture(t, eval)
	ch := seedChallenge(t, f, 2)

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "good", Language: model.LangPython})
	require.NoError(t, err)
	require.Equal(t, model.ProgressCompleted, f.progress.stateOf("user-1", ch.ID))

	pass = false
	sub, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "bad", Language: model.LangPython})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictWrongAnswer, *sub.Verdict)

	// Earlier completion is not undone by a worse attempt.
	assert.Equal(t, model.ProgressCompleted, f.progress.stateOf("user-1", ch.ID))
}

func TestGetSubmissionHidesHiddenCaseContent(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 4)

	sub, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.NoError(t, err)

	got, err := f.svc.GetSubmission(context.Background(), "user-1", model.RoleUser, sub.ID)
	require.NoError(t, err)
	require.Len(t, got.CaseResults, 4)
	for _, cr := range got.CaseResults {
		if cr.Hidden {
			assert.Empty(t, cr.Input)
			assert.Empty(t, cr.ExpectedOutput)
			assert.Empty(t, cr.ActualOutput)
		} else {
			assert.NotEmpty(t, cr.Input)
		}
		assert.Equal(t, model.VerdictAccepted, cr.Verdict)
	}

	// Admins see everything.
	got, err = f.svc.GetSubmission(context.Background(), "admin-1", model.RoleAdmin, sub.ID)
	require.NoError(t, err)
	for _, cr := range got.CaseResults {
		assert.NotEmpty(t, cr.Input)
	}

	// Other users see nothing at all.
	_, err = f.svc.GetSubmission(context.Background(), "user-2", model.RoleUser, sub.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestFocusLossSkipsCompletedChallenges(t *testing.T) {
	f := newSessionFixture(t, passEvaluator())
	ch := seedChallenge(t, f, 2)

	_, err := f.svc.Submit(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.NoError(t, err)

	tests, err := f.svc.FocusLoss(context.Background(), "user-1", ch.Slug, RunRequest{Code: "x", Language: model.LangPython})
	require.NoError(t, err)
	assert.Nil(t, tests)
}
