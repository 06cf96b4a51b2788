// Package shell runs agent commands through the sandbox policy with a hard
// timeout, output caps, and an append-only audit history in the workspace.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/sandbox"
)

// Result describes one command execution attempt. ExitCode is -1 for
// blocked, needs-confirmation, timeout, and spawn-error paths.
type Result struct {
	Command           string
	ExitCode          int
	Stdout            string
	Stderr            string
	TimedOut          bool
	Blocked           bool
	NeedsConfirmation bool
}

// Executor executes commands for a single agent.
type Executor struct {
	policy      *sandbox.Policy
	workspace   string
	timeout     time.Duration
	maxOutput   int
	historyFile string

	historyRecordOutput bool
	historyOutputMax    int
	historyMaxSize      int64
}

// NewExecutor builds an executor from the shell config and the agent's
// workspace and sandbox mode.
func NewExecutor(cfg config.ShellConfig, workspace string, mode sandbox.Mode) *Executor {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	return &Executor{
		policy:              sandbox.NewPolicy(mode, cfg.DangerousCommands, cfg.BlockedCommands),
		workspace:           abs,
		timeout:             time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxOutput:           cfg.MaxOutputChars,
		historyFile:         filepath.Join(abs, ".shell_history"),
		historyRecordOutput: cfg.HistoryRecordOutput,
		historyOutputMax:    cfg.HistoryOutputMaxChars,
		historyMaxSize:      int64(cfg.HistoryMaxFileSizeMB) * 1024 * 1024,
	}
}

// Policy exposes the sandbox policy (used for prompt composition).
func (e *Executor) Policy() *sandbox.Policy { return e.policy }

// Execute runs a command. Policy violations short-circuit before any
// subprocess is spawned; every outcome is recorded to history.
func (e *Executor) Execute(ctx context.Context, command string) Result {
	switch d := e.policy.Check(command); d.Verdict {
	case sandbox.Blocked:
		res := Result{Command: command, ExitCode: -1, Blocked: true, Stderr: "Command blocked: " + d.Reason}
		e.recordHistory(res)
		return res
	case sandbox.NeedsConfirmation:
		res := Result{Command: command, ExitCode: -1, NeedsConfirmation: true,
			Stderr: "This command requires user confirmation before execution."}
		e.recordHistory(res)
		return res
	}

	res := e.run(ctx, command)
	e.recordHistory(res)
	return res
}

func (e *Executor) run(ctx context.Context, command string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if e.policy.Mode() != sandbox.ModeNormal {
		cmd.Dir = e.workspace
	}
	cmd.Env = os.Environ()

	// Run the shell in its own process group and kill the whole group on
	// timeout. Killing just the shell leaves its children running.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			Command:  command,
			ExitCode: -1,
			Stderr:   fmt.Sprintf("Command timed out after %d seconds.", int(e.timeout.Seconds())),
			TimedOut: true,
		}
	}

	res := Result{
		Command: command,
		Stdout:  e.clampOutput(stdout.String()),
		Stderr:  e.clampOutput(stderr.String()),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = "Execution error: " + err.Error()
			}
		}
	}
	return res
}

// clampOutput enforces UTF-8 validity (replacement rune for bad bytes) and
// the configured output cap.
func (e *Executor) clampOutput(s string) string {
	s = strings.ToValidUTF8(s, "�")
	if e.maxOutput > 0 && len(s) > e.maxOutput {
		s = s[:e.maxOutput]
	}
	return s
}

// recordHistory appends a structured entry to .shell_history.
// Failures are logged and swallowed; history must never break execution.
func (e *Executor) recordHistory(res Result) {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0o755); err != nil {
		slog.Warn("shell history dir", "error", err)
		return
	}

	ts := time.Now().UTC().Format("2006-01-02 15:04:05")
	lines := []string{
		fmt.Sprintf("[%s] $ %s", ts, res.Command),
		fmt.Sprintf("exit_code: %d", res.ExitCode),
	}
	switch {
	case res.Blocked:
		lines = append(lines, "blocked: "+res.Stderr)
	case res.NeedsConfirmation:
		lines = append(lines, "status: needs_confirmation")
	case e.historyRecordOutput:
		if res.Stdout != "" {
			lines = append(lines, "stdout: "+truncate(res.Stdout, e.historyOutputMax))
		}
		if res.Stderr != "" {
			lines = append(lines, "stderr: "+truncate(res.Stderr, e.historyOutputMax))
		}
	}
	lines = append(lines, "---")

	f, err := os.OpenFile(e.historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("shell history open", "error", err)
		return
	}
	_, werr := f.WriteString(strings.Join(lines, "\n") + "\n")
	f.Close()
	if werr != nil {
		slog.Warn("shell history write", "error", werr)
		return
	}

	e.rotateHistoryIfNeeded()
}

// rotateHistoryIfNeeded rewrites the history keeping the trailing
// two-thirds of lines once the file exceeds the configured size.
func (e *Executor) rotateHistoryIfNeeded() {
	if e.historyMaxSize <= 0 {
		return
	}
	info, err := os.Stat(e.historyFile)
	if err != nil || info.Size() <= e.historyMaxSize {
		return
	}

	data, err := os.ReadFile(e.historyFile)
	if err != nil {
		return
	}
	lines := strings.SplitAfter(string(data), "\n")
	keepFrom := len(lines) / 3
	if err := os.WriteFile(e.historyFile, []byte(strings.Join(lines[keepFrom:], "")), 0o644); err != nil {
		slog.Warn("shell history rotate", "error", err)
	}
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
