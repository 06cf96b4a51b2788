package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nonexistent"))
	if s.Memory() != "" || s.Rules() != "" {
		t.Error("missing files should read as empty")
	}
	if s.PendingTasks() != nil {
		t.Error("missing task.md should yield no tasks")
	}
}

func TestWriteAndAppendMemory(t *testing.T) {
	s := NewStore(t.TempDir())

	if !s.WriteMemory("initial") {
		t.Fatal("write failed")
	}
	if s.Memory() != "initial" {
		t.Errorf("memory = %q", s.Memory())
	}

	if !s.AppendMemory("learned something") {
		t.Fatal("append failed")
	}
	got := s.Memory()
	if !strings.Contains(got, "### [") || !strings.Contains(got, "learned something") {
		t.Errorf("append format wrong:\n%s", got)
	}
	if !strings.HasPrefix(got, "initial") {
		t.Errorf("append should preserve existing content:\n%s", got)
	}
}

func TestSearchMemory(t *testing.T) {
	s := NewStore(t.TempDir())
	s.WriteMemory("Likes coffee\nPrefers TEA in the morning\nno drinks")

	hits := s.SearchMemory("tea")
	if len(hits) != 1 || !strings.Contains(hits[0], "TEA") {
		t.Errorf("search hits = %v", hits)
	}
}

func TestPendingTasks(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	content := "# Tasks\n\n- [ ] buy milk\n- [x] done thing\n  - [ ]   indented task  \n- [ ]\nplain line\n"
	os.WriteFile(filepath.Join(dir, FileTask), []byte(content), 0o644)

	tasks := s.PendingTasks()
	if len(tasks) != 2 {
		t.Fatalf("tasks = %v, want 2", tasks)
	}
	if tasks[0] != "buy milk" || tasks[1] != "indented task" {
		t.Errorf("tasks = %v", tasks)
	}
}

func TestInitSeedsDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	s := NewStore(dir)
	if err := s.Init("Turtle", "Alex"); err != nil {
		t.Fatal(err)
	}

	rules := s.Rules()
	if !strings.Contains(rules, "**Turtle**") || !strings.Contains(rules, "**Alex**") {
		t.Errorf("rules not templated:\n%s", rules)
	}
	if !strings.Contains(s.Task(), "- [ ] task description") {
		t.Errorf("task.md seed wrong:\n%s", s.Task())
	}

	// Init must not clobber existing content.
	s.WriteMemory("keep me")
	if err := s.Init("Turtle", "Alex"); err != nil {
		t.Fatal(err)
	}
	if s.Memory() != "keep me" {
		t.Error("Init overwrote existing memory.md")
	}
}
