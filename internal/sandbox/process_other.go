//go:build !linux

package sandbox

import "os/exec"

func isolate(cmd *exec.Cmd) {}

func killTree(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func limitMemory(cmd *exec.Cmd, bytes int64) error {
	return nil
}

// waitExited is unsupported here; the caller relies on Wait alone.
func waitExited(cmd *exec.Cmd) bool {
	return false
}
