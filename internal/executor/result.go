package executor

// Status is the terminal state of one sandboxed run.
type Status string

const (
	StatusSuccess Status = "Success"
	// StatusRuntimeError covers non-zero exit and signal termination.
	StatusRuntimeError Status = "RuntimeError"
	// StatusTimeout means the wall-clock limit elapsed and the process
	// group was hard-killed.
	StatusTimeout Status = "Timeout"
	// StatusResourceExceeded means an output or memory ceiling was hit;
	// captured output is truncated at the ceiling.
	StatusResourceExceeded Status = "ResourceExceeded"
	// StatusCompileError carries compiler diagnostics in Stderr.
	StatusCompileError Status = "CompileError"
	// StatusExecutorFault is a fault in the harness itself, not the user
	// program. Callers retry it once before surfacing.
	StatusExecutorFault Status = "ExecutorFault"
)

// Limits bound a single run.
type Limits struct {
	TimeMs      int
	MemoryKb    int
	OutputBytes int
}

// Request describes one untrusted program run against one stdin payload.
type Request struct {
	Source   string
	Language string
	Stdin    string
	Limits   Limits
}

// ExecutionResult is the ephemeral outcome of one run. Nothing here is
// persisted by the executor itself.
type ExecutionResult struct {
	Status    Status `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	TimeMs    int64  `json:"time_ms"`
	Truncated bool   `json:"truncated"`
}

func (r ExecutionResult) Faulted() bool {
	return r.Status == StatusExecutorFault
}
