//go:build !linux

package executor

import "os/exec"

func sandboxAttr(cmd *exec.Cmd) {}

func applyRlimits(pid int, limits Limits) {}

func killGroup(pid int) {
	// Best effort without process groups; the direct child is killed by
	// the caller through cmd.Process.Kill.
}
