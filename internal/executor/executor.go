package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Executor runs one untrusted program against one stdin payload inside an
// ephemeral scratch directory. Each call is independent and stateless; the
// scratch directory is removed on every exit path.
type Executor struct {
	catalog     *Catalog
	scratchRoot string
	compileTime time.Duration
	log         *zap.Logger
}

func New(catalog *Catalog, scratchRoot string, compileTimeMs int, log *zap.Logger) *Executor {
	return &Executor{
		catalog:     catalog,
		scratchRoot: scratchRoot,
		compileTime: time.Duration(compileTimeMs) * time.Millisecond,
		log:         log,
	}
}

func fault(msg string) ExecutionResult {
	return ExecutionResult{Status: StatusExecutorFault, Stderr: msg}
}

// Execute compiles (when the language requires it) and runs req.Source with
// req.Stdin, bounded by req.Limits. It never returns an error: user-caused
// outcomes and harness faults are both encoded in the result status.
func (e *Executor) Execute(ctx context.Context, req Request) ExecutionResult {
	adapter, ok := e.catalog.Lookup(req.Language)
	if !ok {
		return fault("unsupported language: " + req.Language)
	}

	dir, err := os.MkdirTemp(e.scratchRoot, "codequest-run-*")
	if err != nil {
		return fault("create scratch dir: " + err.Error())
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, adapter.SourceFile), []byte(req.Source), 0o644); err != nil {
		return fault("write source: " + err.Error())
	}

	if len(adapter.CompileArgs) > 0 {
		compileLimits := Limits{
			TimeMs:      int(e.compileTime.Milliseconds()),
			OutputBytes: req.Limits.OutputBytes,
		}
		ps := e.runProcess(ctx, dir, adapter.CompileArgs, "", compileLimits)
		switch {
		case ps.fault != nil:
			return fault("compile: " + ps.fault.Error())
		case ps.timedOut:
			return ExecutionResult{Status: StatusCompileError, Stderr: "compilation timed out", TimeMs: ps.timeMs}
		case ps.exitCode != 0:
			return ExecutionResult{
				Status:   StatusCompileError,
				Stderr:   ps.stderr,
				ExitCode: ps.exitCode,
				TimeMs:   ps.timeMs,
			}
		}
	}

	ps := e.runProcess(ctx, dir, adapter.RunArgs, req.Stdin, req.Limits)
	if ps.fault != nil {
		return fault("run: " + ps.fault.Error())
	}

	res := ExecutionResult{
		Stdout:    ps.stdout,
		Stderr:    ps.stderr,
		ExitCode:  ps.exitCode,
		TimeMs:    ps.timeMs,
		Truncated: ps.truncated,
	}
	switch {
	case ps.timedOut:
		res.Status = StatusTimeout
	case ps.truncated:
		res.Status = StatusResourceExceeded
	case ps.exitCode != 0:
		res.Status = StatusRuntimeError
	default:
		res.Status = StatusSuccess
	}
	return res
}

type procState struct {
	stdout    string
	stderr    string
	truncated bool
	exitCode  int
	timeMs    int64
	timedOut  bool
	fault     error
}

func (e *Executor) runProcess(ctx context.Context, dir string, args []string, stdin string, limits Limits) procState {
	runCtx := ctx
	if limits.TimeMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(limits.TimeMs)*time.Millisecond)
		defer cancel()
	}

	stdout := newCappedBuffer(limits.OutputBytes)
	stderr := newCappedBuffer(limits.OutputBytes)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	// Minimal environment: the scratch dir is HOME and cwd, nothing else
	// from the host leaks in.
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + dir}
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	sandboxAttr(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return procState{fault: err}
	}
	applyRlimits(cmd.Process.Pid, limits)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case <-runCtx.Done():
		killGroup(cmd.Process.Pid)
		_ = cmd.Process.Kill()
		waitErr = <-done
		if ctx.Err() != nil {
			// The caller went away; this is not a verdict on the program.
			return procState{fault: ctx.Err()}
		}
		timedOut = true
	case waitErr = <-done:
	}
	elapsed := time.Since(start).Milliseconds()

	exitCode := 0
	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitCode = ee.ExitCode()
		} else if !timedOut {
			return procState{fault: waitErr}
		}
	}

	ps := procState{
		stdout:    stdout.String(),
		stderr:    stderr.String(),
		truncated: stdout.Truncated() || stderr.Truncated(),
		exitCode:  exitCode,
		timeMs:    elapsed,
		timedOut:  timedOut,
	}
	if timedOut {
		e.log.Debug("run hard-terminated at wall-clock limit",
			zap.Strings("args", args), zap.Int("limit_ms", limits.TimeMs))
	}
	return ps
}
