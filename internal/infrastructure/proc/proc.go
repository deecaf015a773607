// Package proc answers liveness questions about worker PIDs. A registry
// entry counts as live only when the PID exists AND still belongs to this
// executable, so PID reuse by unrelated programs is not mistaken for a
// running worker.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Alive checks whether a process with the given PID is running
func Alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 doesn't deliver anything, it only checks existence
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	if err == syscall.EPERM {
		// Exists but owned by someone else
		return true
	}
	return false
}

// SameExecutable reports whether the PID's command name matches ours.
// On Linux this reads /proc/<pid>/comm; elsewhere it degrades to the
// liveness check alone.
func SameExecutable(pid int) bool {
	self, err := os.Executable()
	if err != nil {
		return true
	}
	selfName := filepath.Base(self)

	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		// Not a procfs platform; fall back to the PID check only
		return true
	}

	name := strings.TrimSpace(string(data))
	// comm is truncated to 15 bytes by the kernel
	if len(name) == 15 && len(selfName) > 15 {
		return strings.HasPrefix(selfName, name)
	}
	return name == selfName
}

// Kill sends the platform termination signal
func Kill(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(syscall.SIGTERM)
}
