//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate puts the child in its own process group so a timeout can take down
// everything it spawned. Pdeathsig fires when the OS thread that forked the
// child exits, not the whole process, so it is only a backstop for a crash
// of the parent; killTree is what actually stops the group.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

// limitMemory caps the child's address space. The limit applies from the
// moment it is set, so very early allocations in the child are not covered.
func limitMemory(cmd *exec.Cmd, bytes int64) error {
	if bytes <= 0 || cmd.Process == nil {
		return nil
	}
	lim := unix.Rlimit{Cur: uint64(bytes), Max: uint64(bytes)}
	return unix.Prlimit(cmd.Process.Pid, unix.RLIMIT_AS, &lim, nil)
}

// waitExited blocks until the child exits without reaping it.
func waitExited(cmd *exec.Cmd) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, cmd.Process.Pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == unix.EINTR {
			continue
		}
		return err == nil
	}
}
