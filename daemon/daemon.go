package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// EnvFlag marks a child process started by StartDaemon.
const EnvFlag = "HURST_TRADER_DAEMON"

// IsDaemon reports whether this process was started by StartDaemon.
func IsDaemon() bool {
	return os.Getenv(EnvFlag) == "true"
}

// StartDaemon re-executes the binary in the background and records its PID in pidFile.
func StartDaemon(pidFile string, args []string) error {
	if pid, err := ReadPID(pidFile); err == nil && processAlive(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), EnvFlag+"=true")
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := WritePID(pidFile, cmd.Process.Pid); err != nil {
		return err
	}

	fmt.Printf("Daemon started with PID: %d. PID file saved as %s\n", cmd.Process.Pid, pidFile)
	return nil
}

// StopDaemon sends SIGTERM so the engine can settle its shutdown, then removes pidFile.
func StopDaemon(pidFile string) error {
	pid, err := ReadPID(pidFile)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	if err := os.Remove(pidFile); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Printf("Daemon with PID %d has been stopped.\n", pid)
	return nil
}

// RestartDaemon restarts the daemon process
func RestartDaemon(pidFile string, args []string) error {
	if err := StopDaemon(pidFile); err != nil {
		fmt.Printf("Warning: Could not stop daemon: %v\n", err)
	}
	return StartDaemon(pidFile, args)
}

// WritePID stores pid in path, creating parent directories.
func WritePID(path string, pid int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPID parses the PID stored in path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("failed to parse PID %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// GetExecutablePath returns the current executable path
func GetExecutablePath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Abs(execPath)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
