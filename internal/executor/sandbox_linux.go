//go:build linux

package executor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func sandboxAttr(cmd *exec.Cmd) {
	// Own process group so the whole tree dies on one kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// applyRlimits caps address space and file size on the started process.
// Applied immediately after Start, before any meaningful allocation can
// happen in the child.
func applyRlimits(pid int, limits Limits) {
	if limits.MemoryKb > 0 {
		mem := uint64(limits.MemoryKb) * 1024
		_ = unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: mem, Max: mem}, nil)
	}
	if limits.OutputBytes > 0 {
		fs := uint64(limits.OutputBytes)
		_ = unix.Prlimit(pid, unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: fs, Max: fs}, nil)
	}
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
