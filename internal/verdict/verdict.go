package verdict

import (
	"math"

	"codequest/internal/domain/model"
	"codequest/internal/executor"
	"codequest/internal/runner"
)

// Result is the reduced outcome of a full case set.
type Result struct {
	Verdict model.Verdict `json:"verdict"`
	Score   int           `json:"score"`
	Passed  int           `json:"passed"`
	Total   int           `json:"total"`
}

// CaseVerdict classifies a single case outcome. A passed case is Accepted;
// a mismatch on a clean run is WrongAnswer; everything else follows the
// execution status. Hitting a resource ceiling counts as a runtime fault of
// the program, not of the harness.
func CaseVerdict(o runner.Outcome) model.Verdict {
	if o.Passed {
		return model.VerdictAccepted
	}
	switch o.Exec.Status {
	case executor.StatusCompileError:
		return model.VerdictCompileError
	case executor.StatusTimeout:
		return model.VerdictTimeout
	case executor.StatusRuntimeError, executor.StatusResourceExceeded:
		return model.VerdictRuntimeError
	default:
		return model.VerdictWrongAnswer
	}
}

// Score reduces per-case outcomes to a submission verdict and awarded
// score: score = round(points * passRate), Accepted iff every case passed,
// otherwise the most severe failure category present wins
// (CompileError > RuntimeError > Timeout > WrongAnswer). Full points are
// reserved for Accepted: a non-accepted result is capped at points-1 so
// rounding on a near miss cannot grant the maximum.
func Score(points int, outcomes []runner.Outcome) Result {
	total := len(outcomes)
	if total == 0 {
		// Guarded upstream by the non-empty case set invariant.
		return Result{Verdict: model.VerdictWrongAnswer}
	}

	passed := 0
	worst := model.VerdictWrongAnswer
	for _, o := range outcomes {
		v := CaseVerdict(o)
		if v == model.VerdictAccepted {
			passed++
			continue
		}
		if v.Severity() > worst.Severity() {
			worst = v
		}
	}

	rate := float64(passed) / float64(total)
	score := int(math.Round(float64(points) * rate))

	v := model.VerdictAccepted
	if passed != total {
		v = worst
		if score >= points {
			score = points - 1
		}
	}
	return Result{Verdict: v, Score: score, Passed: passed, Total: total}
}
