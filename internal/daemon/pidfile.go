package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the daemon's PID, refusing when another live daemon
// already owns the file. A stale file from a dead process is replaced.
func WritePIDFile(path string) error {
	if pid, err := ReadPIDFile(path); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("daemon already running (pid %d)", pid)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pid file dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile returns the recorded PID.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file, ignoring a missing one.
func RemovePIDFile(path string) {
	_ = os.Remove(path)
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
