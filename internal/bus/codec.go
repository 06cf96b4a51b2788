package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes bounds a single envelope line. Replies carry truncated shell
// output and LLM text, both capped upstream, so 4 MiB is generous.
const maxLineBytes = 4 << 20

// Writer serializes envelopes as newline-delimited JSON.
// Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write marshals v and appends a newline. v should be a Command or Event.
func (w *Writer) Write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("bus: write envelope: %w", err)
	}
	return nil
}

// ReadCommands decodes commands from r until EOF or a decode error,
// invoking handle for each. A malformed line is skipped, not fatal:
// the stream must survive a stray log line on the pipe.
func ReadCommands(r io.Reader, handle func(Command)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil || cmd.Type == "" {
			continue
		}
		handle(cmd)
	}
	return scanner.Err()
}

// ReadEvents decodes events from r until EOF, invoking handle for each.
func ReadEvents(r io.Reader, handle func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			continue
		}
		handle(ev)
	}
	return scanner.Err()
}
