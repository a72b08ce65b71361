// Package notify carries the transient success and error messages shown to
// the dashboard user.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
)

// Notifier receives user-facing messages.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Level of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toast is one message in the feed.
type Toast struct {
	ID      uuid.UUID
	Level   Level
	Message string
	At      time.Time
}

// DefaultCapacity is the number of toasts a Feed keeps.
const DefaultCapacity = 32

// Feed is a bounded, concurrency-safe history of toasts. Once full the
// oldest toast is overwritten.
type Feed struct {
	mu    sync.Mutex
	clock timeutil.Clock
	buf   []Toast
	next  int
	full  bool
}

// NewFeed creates a feed holding up to capacity toasts. A nil clock uses
// the real clock.
func NewFeed(capacity int, clock timeutil.Clock) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Feed{clock: clock, buf: make([]Toast, capacity)}
}

func (f *Feed) Success(msg string) { f.push(LevelSuccess, msg) }

func (f *Feed) Error(msg string) { f.push(LevelError, msg) }

func (f *Feed) push(level Level, msg string) {
	t := Toast{ID: uuid.New(), Level: level, Message: msg, At: f.clock.Now()}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = t
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns up to n toasts, newest first. n <= 0 returns all.
func (f *Feed) Recent(n int) []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.next
	if f.full {
		size = len(f.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Toast, 0, n)
	for i := 1; len(out) < n && i <= size; i++ {
		t := f.buf[(f.next-i+len(f.buf))%len(f.buf)]
		if t.ID == uuid.Nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Dismiss removes the toast with the given id. It reports whether a toast
// was removed.
func (f *Feed) Dismiss(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.buf {
		if f.buf[i].ID == id {
			f.buf[i] = Toast{}
			return true
		}
	}
	return false
}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}

// Discard drops every message.
var Discard Notifier = discard{}

// Recorder is a Notifier that keeps messages in memory, for tests.
type Recorder struct {
	mu        sync.Mutex
	Successes []string
	Errors    []string
}

func (r *Recorder) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Successes = append(r.Successes, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// Snapshot returns copies of the recorded messages.
func (r *Recorder) Snapshot() (successes, errors []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Successes...), append([]string(nil), r.Errors...)
}
