// Package diagnostics keeps a bounded, in-memory history of outbound notification attempts
// for the admin API.
package diagnostics

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Entry is one recorded delivery attempt.
type Entry struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Target   string        `json:"target"`
	Event    string        `json:"event"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// Recorder accepts entries. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(e Entry)
}

// Ring is a fixed-capacity Recorder that overwrites its oldest entry when full.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	next  int
	full  bool
	nowFn func() time.Time
}

// NewRing returns a ring holding at most capacity entries (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Entry, capacity), nowFn: time.Now}
}

// Record stores e, filling ID and At when empty.
func (r *Ring) Record(e Entry) {
	if e.ID == "" {
		e.ID = ksuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.At.IsZero() {
		e.At = r.nowFn().UTC()
	}
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns everything held.
func (r *Ring) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns how many entries are held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Record(Entry) {}
