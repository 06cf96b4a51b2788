// Package heartbeat periodically checks an agent's task list and notifies
// the daemon when unchecked tasks exist. Edits to task.md wake the monitor
// immediately instead of waiting for the next tick.
package heartbeat

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/workspace"
)

const (
	defaultInterval = 300 * time.Second
	// writeDebounce absorbs editor save bursts on task.md.
	writeDebounce = 500 * time.Millisecond
)

// TasksFunc receives the pending tasks found on a heartbeat.
type TasksFunc func(agentID string, tasks []string)

// Monitor watches one agent's task list.
type Monitor struct {
	cfg     config.HeartbeatConfig
	agentID string
	ws      *workspace.Store
	onTasks TasksFunc
	cron    *gronx.Gronx
}

func New(cfg config.HeartbeatConfig, agentID string, ws *workspace.Store, onTasks TasksFunc) *Monitor {
	return &Monitor{
		cfg:     cfg,
		agentID: agentID,
		ws:      ws,
		onTasks: onTasks,
		cron:    gronx.New(),
	}
}

// Run blocks until the context is canceled. Returns immediately when the
// heartbeat is disabled.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}

	interval := defaultInterval
	if m.cfg.IntervalSeconds > 0 {
		interval = time.Duration(m.cfg.IntervalSeconds) * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Watch the workspace directory; the task file may not exist yet and
	// watching the directory also survives rename-style saves.
	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("heartbeat watcher unavailable, falling back to interval only",
			"agent", m.agentID, "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(m.ws.Dir()); err != nil {
			slog.Warn("heartbeat watch failed", "agent", m.agentID, "dir", m.ws.Dir(), "error", err)
		} else {
			events = watcher.Events
		}
	}

	slog.Info("heartbeat started", "agent", m.agentID, "interval", interval)

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			m.check()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != workspace.FileTask {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(writeDebounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(writeDebounce)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			m.check()
		}
	}
}

// check fires the callback when pending tasks exist and the active-hours
// gate (if configured) matches the current time.
func (m *Monitor) check() {
	if !m.activeNow(time.Now()) {
		return
	}
	tasks := m.ws.PendingTasks()
	if len(tasks) == 0 {
		return
	}
	slog.Debug("heartbeat found tasks", "agent", m.agentID, "count", len(tasks))
	if m.onTasks != nil {
		m.onTasks(m.agentID, tasks)
	}
}

// activeNow evaluates the optional active-hours cron gate. Invalid
// expressions fail open so a config typo doesn't silence the heartbeat.
func (m *Monitor) activeNow(now time.Time) bool {
	if m.cfg.ActiveHoursCron == "" {
		return true
	}
	due, err := m.cron.IsDue(m.cfg.ActiveHoursCron, now)
	if err != nil {
		slog.Warn("invalid active_hours_cron", "agent", m.agentID,
			"expr", m.cfg.ActiveHoursCron, "error", err)
		return true
	}
	return due
}
