package notify

import (
	"context"
	"sync"
)

// Notice is a single recorded notification.
type Notice struct {
	Level   Level
	Message string
}

// Recorder keeps every notice it receives. Tests use it to assert on what
// the user would have seen.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(_ context.Context, level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Message: message})
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Filter returns the recorded messages at the given level.
func (r *Recorder) Filter(level Level) []string {
	var out []string
	for _, n := range r.Notices() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}
