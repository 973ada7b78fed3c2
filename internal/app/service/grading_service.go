package service

import (
	"context"

	"codequest/internal/domain/model"
	"codequest/internal/executor"
	"codequest/internal/runner"
	"codequest/internal/verdict"
)

// Evaluator grades source code against an ordered case set. The session and
// challenge services depend on this interface; tests substitute fakes.
type Evaluator interface {
	Evaluate(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error)
}

// GradingService glues the test case runner and the scoring engine together
// under one challenge's limits and normalization rules.
type GradingService struct {
	runner      *runner.Runner
	outputLimit int
}

func NewGradingService(r *runner.Runner, outputLimitBytes int) *GradingService {
	return &GradingService{runner: r, outputLimit: outputLimitBytes}
}

func (g *GradingService) Evaluate(ctx context.Context, ch *model.Challenge, code string, lang model.Language, cases []runner.Case) ([]runner.Outcome, verdict.Result, error) {
	limits := executor.Limits{
		TimeMs:      ch.RuntimeLimitMs,
		MemoryKb:    ch.MemoryLimitKb,
		OutputBytes: g.outputLimit,
	}
	outcomes, err := g.runner.RunAll(ctx, code, lang, cases, limits, ch.OutputNorm)
	if err != nil {
		return nil, verdict.Result{}, err
	}
	return outcomes, verdict.Score(ch.Points, outcomes), nil
}

// ExampleCases adapts a challenge's visible examples for the run kind.
func ExampleCases(examples []model.Example) []runner.Case {
	cases := make([]runner.Case, 0, len(examples))
	for _, ex := range examples {
		cases = append(cases, runner.Case{
			ID:       ex.ID,
			Input:    ex.Input,
			Expected: ex.ExpectedOutput,
		})
	}
	return cases
}

// TestCases adapts the full grading set for the submit kind.
func TestCases(tcs []model.TestCase) []runner.Case {
	cases := make([]runner.Case, 0, len(tcs))
	for _, tc := range tcs {
		cases = append(cases, runner.Case{
			ID:       tc.ID,
			Input:    tc.Input,
			Expected: tc.ExpectedOutput,
			Hidden:   tc.IsHidden,
		})
	}
	return cases
}
