package shell

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/sandbox"
)

func testShellConfig() config.ShellConfig {
	return config.ShellConfig{
		TimeoutSeconds:        5,
		MaxOutputChars:        1000,
		DangerousCommands:     []string{"rm"},
		BlockedCommands:       []string{"rm -rf /"},
		HistoryRecordOutput:   true,
		HistoryOutputMaxChars: 100,
		HistoryMaxFileSizeMB:  1,
	}
}

func TestExecuteRunsInWorkspace(t *testing.T) {
	ws := t.TempDir()
	e := NewExecutor(testShellConfig(), ws, sandbox.ModeConfined)

	res := e.Execute(context.Background(), "pwd")
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.ExitCode, res.Stderr)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	want, _ := filepath.EvalSymlinks(ws)
	if got != want {
		t.Errorf("cwd = %q, want workspace %q", got, want)
	}
}

func TestBlockedCommandNeverSpawns(t *testing.T) {
	ws := t.TempDir()
	e := NewExecutor(testShellConfig(), ws, sandbox.ModeConfined)

	marker := filepath.Join(ws, "marker")
	res := e.Execute(context.Background(), "touch "+marker+" && cat /etc/passwd")
	if !res.Blocked || res.ExitCode != -1 {
		t.Fatalf("expected blocked result, got %+v", res)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Error("blocked command was executed")
	}

	history, _ := os.ReadFile(filepath.Join(ws, ".shell_history"))
	if !strings.Contains(string(history), "blocked:") {
		t.Errorf("history missing blocked entry:\n%s", history)
	}
}

func TestDangerousCommandNeedsConfirmation(t *testing.T) {
	ws := t.TempDir()
	e := NewExecutor(testShellConfig(), ws, sandbox.ModeConfined)

	marker := filepath.Join(ws, "foo")
	os.WriteFile(marker, []byte("x"), 0o644)

	res := e.Execute(context.Background(), "rm foo")
	if !res.NeedsConfirmation || res.ExitCode != -1 {
		t.Fatalf("expected needs-confirmation, got %+v", res)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("dangerous command was executed without confirmation")
	}

	history, _ := os.ReadFile(filepath.Join(ws, ".shell_history"))
	if !strings.Contains(string(history), "status: needs_confirmation") {
		t.Errorf("history missing needs_confirmation entry:\n%s", history)
	}
}

func TestTimeout(t *testing.T) {
	cfg := testShellConfig()
	cfg.TimeoutSeconds = 1
	e := NewExecutor(cfg, t.TempDir(), sandbox.ModeConfined)

	res := e.Execute(context.Background(), "sleep 5")
	if !res.TimedOut || res.ExitCode != -1 {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestTimeoutKillsProcessGroup(t *testing.T) {
	cfg := testShellConfig()
	cfg.TimeoutSeconds = 1
	ws := t.TempDir()
	e := NewExecutor(cfg, ws, sandbox.ModeConfined)

	// The shell is the group leader, so $$ is the pgid. The backgrounded
	// sleep must die with the group instead of outliving the shell.
	res := e.Execute(context.Background(), "echo $$ > pgid; sleep 30 & wait")
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(ws, "pgid"))
	if err != nil {
		t.Fatal(err)
	}
	pgid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pgid file = %q: %v", data, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(-pgid, 0); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("process group %d still alive after timeout", pgid)
}

func TestOutputTruncation(t *testing.T) {
	cfg := testShellConfig()
	cfg.MaxOutputChars = 50
	e := NewExecutor(cfg, t.TempDir(), sandbox.ModeConfined)

	res := e.Execute(context.Background(), "yes x | head -n 100")
	if len(res.Stdout) > 50 {
		t.Errorf("stdout not truncated: %d chars", len(res.Stdout))
	}
}

func TestNonZeroExitCode(t *testing.T) {
	e := NewExecutor(testShellConfig(), t.TempDir(), sandbox.ModeConfined)

	res := e.Execute(context.Background(), "exit 3")
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
	if res.TimedOut || res.Blocked || res.NeedsConfirmation {
		t.Errorf("flags should be clear: %+v", res)
	}
}

func TestHistoryEntryFormat(t *testing.T) {
	ws := t.TempDir()
	e := NewExecutor(testShellConfig(), ws, sandbox.ModeConfined)

	e.Execute(context.Background(), "echo hello")

	history, err := os.ReadFile(filepath.Join(ws, ".shell_history"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(history)
	for _, want := range []string{"$ echo hello", "exit_code: 0", "stdout: hello", "---"} {
		if !strings.Contains(text, want) {
			t.Errorf("history missing %q:\n%s", want, text)
		}
	}
}
