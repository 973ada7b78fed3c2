package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"codequest/internal/domain/model"
	"codequest/internal/executor"
)

// Submitter is the slice of the executor pool the runner needs. Tests plug
// in a fake.
type Submitter interface {
	Submit(ctx context.Context, req executor.Request) (<-chan executor.ExecutionResult, error)
}

// Case is one grading input/output pair, built from either an Example (run
// kind) or a TestCase (submit kind).
type Case struct {
	ID       string
	Input    string
	Expected string
	Hidden   bool
}

// Outcome pairs a case with its execution result and comparison verdict.
type Outcome struct {
	Case   Case
	Exec   executor.ExecutionResult
	Actual string
	Passed bool
}

const (
	busyRetries   = 3
	busyBackoff   = 100 * time.Millisecond
	faultRetries  = 1
	maxCaseFanout = 4
)

type Runner struct {
	pool Submitter
}

func New(pool Submitter) *Runner {
	return &Runner{pool: pool}
}

// RunAll executes every case in declared order and never short-circuits on
// failure: full per-case detail is the product's feedback contract, so the
// scoring engine always sees the complete result set.
//
// A compile failure is program-level, not input-level: the first case
// detects it and its diagnostics are replicated to the remaining cases
// without spawning more processes.
func (r *Runner) RunAll(ctx context.Context, source string, lang model.Language, cases []Case, limits executor.Limits, norm model.OutputNorm) ([]Outcome, error) {
	if len(cases) == 0 {
		return nil, errors.New("runner: empty case set")
	}

	outcomes := make([]Outcome, len(cases))

	first, err := r.runCase(ctx, source, lang, cases[0], limits, norm)
	if err != nil {
		return nil, err
	}
	outcomes[0] = first
	if first.Exec.Status == executor.StatusCompileError {
		for i := 1; i < len(cases); i++ {
			outcomes[i] = Outcome{Case: cases[i], Exec: first.Exec, Actual: "", Passed: false}
		}
		return outcomes, nil
	}

	// Remaining cases fan out in parallel; results land by index so the
	// returned order always matches declaration order.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCaseFanout)
	for i := 1; i < len(cases); i++ {
		g.Go(func() error {
			out, err := r.runCase(gctx, source, lang, cases[i], limits, norm)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Runner) runCase(ctx context.Context, source string, lang model.Language, c Case, limits executor.Limits, norm model.OutputNorm) (Outcome, error) {
	req := executor.Request{
		Source:   source,
		Language: string(lang),
		Stdin:    c.Input,
		Limits:   limits,
	}

	// Executor calls are idempotent, so harness faults are retried once
	// before the whole evaluation is surfaced as an infrastructure error.
	var res executor.ExecutionResult
	for attempt := 0; ; attempt++ {
		var err error
		res, err = r.execute(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		if !res.Faulted() || attempt >= faultRetries {
			break
		}
	}
	if res.Faulted() {
		return Outcome{}, fmt.Errorf("runner: executor fault on case %s: %s", c.ID, res.Stderr)
	}

	out := Outcome{Case: c, Exec: res}
	switch res.Status {
	case executor.StatusSuccess:
		out.Actual = res.Stdout
		out.Passed = Normalize(norm, res.Stdout) == Normalize(norm, c.Expected)
	case executor.StatusCompileError:
		out.Actual = ""
	default:
		out.Actual = res.Stderr
	}
	return out, nil
}

// execute submits to the pool and waits. A saturated pool is backpressure,
// retried briefly before propagating ErrBusy to the caller.
func (r *Runner) execute(ctx context.Context, req executor.Request) (executor.ExecutionResult, error) {
	var resCh <-chan executor.ExecutionResult
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		resCh, err = r.pool.Submit(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, executor.ErrBusy) {
			return executor.ExecutionResult{}, err
		}
		select {
		case <-ctx.Done():
			return executor.ExecutionResult{}, ctx.Err()
		case <-time.After(busyBackoff):
		}
	}
	if err != nil {
		return executor.ExecutionResult{}, err
	}

	select {
	case <-ctx.Done():
		return executor.ExecutionResult{}, ctx.Err()
	case res := <-resCh:
		// A cancelled run comes back from the executor as a fault result;
		// the caller's cancellation takes precedence over that framing.
		if res.Faulted() && ctx.Err() != nil {
			return executor.ExecutionResult{}, ctx.Err()
		}
		return res, nil
	}
}
