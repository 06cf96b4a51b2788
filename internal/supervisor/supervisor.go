// Package supervisor spawns and manages agent worker processes. Each agent
// runs as a child process of the daemon; commands go down the child's stdin
// and events come back on its stdout, one JSON object per line.
package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

const (
	// Stop escalation: shutdown command, then SIGTERM, then SIGKILL.
	shutdownGrace = 5 * time.Second
	sigtermGrace  = 3 * time.Second
)

// AgentEvent is an event from a worker tagged with its agent ID.
type AgentEvent struct {
	AgentID string
	Event   bus.Event
}

// Status is a point-in-time snapshot of one agent process.
type Status struct {
	ID           string
	PID          int
	Running      bool
	StartedAt    time.Time
	RestartCount int
}

// Handle tracks one running worker process.
type Handle struct {
	ID           string
	StartedAt    time.Time
	RestartCount int

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	writer   *bus.Writer
	done     chan struct{}
	stopping bool
}

func (h *Handle) running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Supervisor owns the agent process table. Safe for concurrent use.
type Supervisor struct {
	cfg        *config.Config
	configPath string

	// spawn is swappable in tests.
	spawn func(agentID string) *exec.Cmd

	mu     sync.Mutex
	agents map[string]*Handle
	events chan AgentEvent
}

// New creates a supervisor. Workers are spawned by re-executing the current
// binary with the hidden worker subcommand.
func New(cfg *config.Config, configPath string) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		configPath: configPath,
		agents:     make(map[string]*Handle),
		events:     make(chan AgentEvent, 64),
	}
	s.spawn = func(agentID string) *exec.Cmd {
		bin, err := os.Executable()
		if err != nil {
			bin = os.Args[0]
		}
		args := []string{"worker", "--agent", agentID}
		if s.configPath != "" {
			args = append(args, "--config", s.configPath)
		}
		return exec.Command(bin, args...)
	}
	return s
}

// SetSpawner replaces how worker processes are launched. Must be called
// before any Start.
func (s *Supervisor) SetSpawner(spawn func(agentID string) *exec.Cmd) {
	s.spawn = spawn
}

// Events delivers every worker event, tagged with the agent that sent it.
func (s *Supervisor) Events() <-chan AgentEvent { return s.events }

// Start launches the agent's worker process. Starting an agent that is
// already live restarts it: the old process is torn down and a fresh one
// spawned in its place.
func (s *Supervisor) Start(agentID string) error {
	if _, ok := s.cfg.ResolveAgent(agentID); !ok {
		return fmt.Errorf("unknown agent: %q", agentID)
	}

	s.mu.Lock()
	h, ok := s.agents[agentID]
	if ok && h.running() {
		s.mu.Unlock()
		return s.Restart(agentID)
	}
	count := 0
	if ok {
		count = h.RestartCount
	}
	err := s.startLocked(agentID, count)
	s.mu.Unlock()
	return err
}

// startLocked spawns the process. Caller holds s.mu.
func (s *Supervisor) startLocked(agentID string, restartCount int) error {
	cmd := s.spawn(agentID)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker for %q: %w", agentID, err)
	}

	h := &Handle{
		ID:           agentID,
		StartedAt:    time.Now(),
		RestartCount: restartCount,
		cmd:          cmd,
		stdin:        stdin,
		writer:       bus.NewWriter(stdin),
		done:         make(chan struct{}),
	}
	s.agents[agentID] = h

	go func() {
		_ = bus.ReadEvents(stdout, func(ev bus.Event) {
			s.events <- AgentEvent{AgentID: agentID, Event: ev}
		})
	}()
	go func() {
		err := cmd.Wait()
		close(h.done)
		if err != nil {
			slog.Warn("worker exited", "agent", agentID, "error", err)
		} else {
			slog.Info("worker exited", "agent", agentID)
		}
	}()

	slog.Info("worker started", "agent", agentID, "pid", cmd.Process.Pid, "restarts", restartCount)
	return nil
}

// Send delivers a command to the agent's worker.
func (s *Supervisor) Send(agentID string, cmd bus.Command) error {
	s.mu.Lock()
	h, ok := s.agents[agentID]
	s.mu.Unlock()

	if !ok || !h.running() {
		return fmt.Errorf("agent %q is not running", agentID)
	}
	return h.writer.Write(cmd)
}

// Stop shuts the agent's worker down, escalating from a shutdown command to
// SIGTERM to SIGKILL.
func (s *Supervisor) Stop(agentID string) error {
	s.mu.Lock()
	h, ok := s.agents[agentID]
	if ok {
		// The handle stays in the table so the agent keeps showing up in
		// List with its restart count after a stop.
		h.stopping = true
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("agent %q is not running", agentID)
	}
	if !h.running() {
		return nil
	}

	_ = h.writer.Write(bus.Command{Type: bus.CmdShutdown})
	_ = h.stdin.Close()

	select {
	case <-h.done:
		return nil
	case <-time.After(shutdownGrace):
	}

	slog.Warn("worker ignored shutdown, sending SIGTERM", "agent", agentID)
	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(sigtermGrace):
	}

	slog.Warn("worker ignored SIGTERM, killing", "agent", agentID)
	_ = h.cmd.Process.Kill()
	<-h.done
	return nil
}

// Restart stops and relaunches the agent, bumping its restart count.
func (s *Supervisor) Restart(agentID string) error {
	s.mu.Lock()
	count := 0
	if h, ok := s.agents[agentID]; ok {
		count = h.RestartCount
	}
	s.mu.Unlock()

	if err := s.Stop(agentID); err != nil {
		slog.Debug("restart: stop", "agent", agentID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(agentID, count+1)
}

// RecoverCrashed relaunches any worker that exited without being stopped.
// Returns the IDs of the agents it recovered.
func (s *Supervisor) RecoverCrashed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recovered []string
	for id, h := range s.agents {
		if h.running() || h.stopping {
			continue
		}
		slog.Warn("worker crashed, restarting", "agent", id, "restarts", h.RestartCount+1)
		if err := s.startLocked(id, h.RestartCount+1); err != nil {
			slog.Error("crash recovery failed", "agent", id, "error", err)
			continue
		}
		recovered = append(recovered, id)
	}
	return recovered
}

// List snapshots every configured agent, whether it has been started or
// not. Agents with no process yet have a zero StartedAt.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.cfg.AgentIDs()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		st := Status{ID: id}
		if h, ok := s.agents[id]; ok {
			st.Running = h.running()
			st.StartedAt = h.StartedAt
			st.RestartCount = h.RestartCount
			if h.cmd.Process != nil {
				st.PID = h.cmd.Process.Pid
			}
		}
		out = append(out, st)
	}
	return out
}

// StopAll stops every running agent.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil {
			slog.Warn("stop agent", "agent", id, "error", err)
		}
	}
}
