package log

import "sync"

// Sink receives human-readable status lines (the "status panel" of a run).
// A nil Sink discards everything.
type Sink func(line string)

// Add forwards line to the sink, tolerating a nil receiver.
func (s Sink) Add(line string) {
	if s != nil {
		s(line)
	}
}

// Tee returns a sink that writes every line to s and to the debug log under cat.
func (s Sink) Tee(cat Category) Sink {
	return func(line string) {
		Debug(cat, "status", "line", line)
		s.Add(line)
	}
}

// Buffer is a goroutine-safe Sink target that keeps every line. Useful for
// tests and for surfacing the status log after a failed headless run.
type Buffer struct {
	mu    sync.Mutex
	lines []string
}

// Sink returns a Sink appending to the buffer.
func (b *Buffer) Sink() Sink {
	return func(line string) {
		b.mu.Lock()
		b.lines = append(b.lines, line)
		b.mu.Unlock()
	}
}

// Lines returns a copy of the collected lines.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
