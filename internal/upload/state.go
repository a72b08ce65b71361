package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one controller.
type State int

const (
	Idle State = iota
	Selected
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settled reports whether no submission is in flight.
func (s State) Settled() bool { return s != Submitting }

// Kind is the media a controller accepts.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

func (k Kind) article() string {
	if k == KindImage {
		return "an image"
	}
	return "a " + string(k)
}

var (
	// ErrNoSelection is returned by Submit when no file has been selected.
	ErrNoSelection = errors.New("no file selected")
	// ErrBusy is returned while a submission is in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
	// ErrUnsupportedFile is returned by Select for files of the wrong kind.
	ErrUnsupportedFile = errors.New("unsupported file")
)

// Submission is the record of one settled backend call.
type Submission struct {
	ID         uuid.UUID
	Kind       Kind
	FileName   string
	State      State
	ResultID   string
	ItemCount  int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// View is a point-in-time copy of a controller.
type View[R any] struct {
	Kind        Kind
	State       State
	FileName    string
	ContentType string
	Size        int
	PreviewID   string
	Result      R
	HasResult   bool
	ResultID    string
	Error       string
	SubmittedAt time.Time
	CompletedAt time.Time
}
