// Package workspace is the file-backed store for an agent's scratchpad:
// rules.md, skills.md, memory.md, task.md. All operations are best-effort;
// I/O failures read as empty and write as false, because system-prompt
// composition runs every turn and must always succeed.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	FileRules  = "rules.md"
	FileSkills = "skills.md"
	FileMemory = "memory.md"
	FileTask   = "task.md"
)

// Store wraps one agent workspace directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the workspace directory.
func (s *Store) Dir() string { return s.dir }

// Read returns a workspace file's content, or "" on any failure.
func (s *Store) Read(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// Rules, Skills, Memory, Task are shorthands for prompt composition.
func (s *Store) Rules() string  { return s.Read(FileRules) }
func (s *Store) Skills() string { return s.Read(FileSkills) }
func (s *Store) Memory() string { return s.Read(FileMemory) }
func (s *Store) Task() string   { return s.Read(FileTask) }

// WriteMemory overwrites memory.md.
func (s *Store) WriteMemory(content string) bool {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false
	}
	return os.WriteFile(filepath.Join(s.dir, FileMemory), []byte(content), 0o644) == nil
}

// AppendMemory appends an entry under a UTC timestamp header.
func (s *Store) AppendMemory(entry string) bool {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false
	}
	f, err := os.OpenFile(filepath.Join(s.dir, FileMemory), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()
	ts := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	_, err = f.WriteString("\n### [" + ts + "]\n" + entry + "\n")
	return err == nil
}

// SearchMemory returns memory lines containing keyword, case-insensitive.
func (s *Store) SearchMemory(keyword string) []string {
	content := s.Memory()
	if content == "" {
		return nil
	}
	needle := strings.ToLower(keyword)
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			out = append(out, line)
		}
	}
	return out
}

// PendingTasks parses task.md for unchecked items: `- [ ] <text>`.
func (s *Store) PendingTasks() []string {
	content := s.Task()
	if content == "" {
		return nil
	}
	var pending []string
	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "- [ ]") {
			if text := strings.TrimSpace(stripped[5:]); text != "" {
				pending = append(pending, text)
			}
		}
	}
	return pending
}

// Init creates the workspace directory and seeds the default files that
// don't exist yet. Called before an agent's first start.
func (s *Store) Init(agentName, humanName string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	seed := func(name, content string) {
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); err == nil {
			return
		}
		_ = os.WriteFile(path, []byte(content), 0o644)
	}

	seed(FileRules, "# Agent Rules\n\n"+
		"## Identity\n\n"+
		"- You are **"+agentName+"**, a helpful personal AI assistant.\n"+
		"- You refer to the user as **"+humanName+"**.\n\n"+
		"## Behavior\n\n"+
		"- Be concise and direct in your responses.\n"+
		"- When executing shell commands, explain what you're doing before running them.\n"+
		"- Always ask for confirmation before performing destructive operations.\n"+
		"- Use the user's preferred language for communication.\n")

	seed(FileSkills, "# Skills\n\n"+
		"<!-- Define agent-specific skills and workflows here. -->\n"+
		"<!-- The agent will load these skills as reference during conversations. -->\n")

	seed(FileMemory, "")

	seed(FileTask, "# Tasks\n\n<!-- Add tasks as: - [ ] task description -->\n")

	return nil
}
