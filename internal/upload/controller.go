// Package upload implements the select-and-submit workflow shared by the
// image and video pages.
//
// A Controller holds at most one selected file and at most one submission
// in flight. Completions that arrive after Close, or from a superseded
// submission, are discarded.
package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/preview"
	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
)

// Recorder persists settled submissions.
type Recorder interface {
	RecordSubmission(ctx context.Context, s Submission) error
}

// Options configures a Controller. Kind and Process are required.
type Options[R any] struct {
	Kind      Kind
	Process   func(ctx context.Context, file backend.Upload) (R, error)
	ResultID  func(R) string
	ItemCount func(R) int
	Notifier  notify.Notifier
	Previews  *preview.Store
	Recorder  Recorder
	Clock     timeutil.Clock
}

// Controller is the upload state machine for one kind of media.
type Controller[R any] struct {
	opts Options[R]

	mu       sync.Mutex
	view     View[R]
	file     *backend.Upload
	gen      uint64
	closed   bool
	inflight sync.WaitGroup
}

// New creates a controller in the Idle state.
func New[R any](opts Options[R]) *Controller[R] {
	if opts.Process == nil {
		panic("upload: Options.Process is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Previews == nil {
		opts.Previews = preview.NewStore()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Controller[R]{opts: opts, view: View[R]{Kind: opts.Kind}}
}

// NewImageController binds a controller to the image endpoint.
func NewImageController(c *backend.Client, opts Options[*backend.ImageResult]) *Controller[*backend.ImageResult] {
	opts.Kind = KindImage
	opts.Process = c.ProcessImage
	opts.ResultID = func(r *backend.ImageResult) string { return r.ResultID }
	opts.ItemCount = func(r *backend.ImageResult) int { return r.ItemCount() }
	return New(opts)
}

// NewVideoController binds a controller to the video endpoint. An error
// the backend reports inside a 2xx body still settles as Succeeded; the
// message travels with the result.
func NewVideoController(c *backend.Client, opts Options[*backend.VideoResult]) *Controller[*backend.VideoResult] {
	opts.Kind = KindVideo
	opts.Process = c.ProcessVideo
	opts.ResultID = func(r *backend.VideoResult) string { return r.ResultID }
	opts.ItemCount = func(r *backend.VideoResult) int { return r.ItemCount() }
	return New(opts)
}

// Kind returns the media kind the controller accepts.
func (c *Controller[R]) Kind() Kind { return c.opts.Kind }

// Select validates file and makes it the current selection. The previous
// preview is released and any earlier result or error is cleared. A
// submission still in flight is superseded and its completion dropped.
func (c *Controller[R]) Select(file backend.Upload) error {
	mt, err := validate(c.opts.Kind, file)
	if err != nil {
		return err
	}
	file.ContentType = mt

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.view.State == Submitting {
		c.gen++
	}

	c.opts.Previews.Release(c.view.PreviewID)
	id := c.opts.Previews.Put(preview.Item{Name: file.Name, ContentType: mt, Data: file.Data})

	c.file = &file
	c.view = View[R]{
		Kind:        c.opts.Kind,
		State:       Selected,
		FileName:    file.Name,
		ContentType: mt,
		Size:        len(file.Data),
		PreviewID:   id,
	}
	return nil
}

// Submit sends the selected file to the backend and waits for the
// outcome. It returns the backend error on failure, ErrNoSelection when
// nothing is selected and ErrBusy while another submission is in flight.
func (c *Controller[R]) Submit(ctx context.Context) error {
	gen, file, err := c.begin()
	if err != nil {
		return err
	}
	return c.run(ctx, gen, file)
}

// SubmitAsync performs Submit's checks and starts the backend call in the
// background. Use Wait to block until it settles.
func (c *Controller[R]) SubmitAsync(ctx context.Context) error {
	gen, file, err := c.begin()
	if err != nil {
		return err
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.run(ctx, gen, file); err != nil {
			monitoring.Warnf("%s submission of %q failed: %v", c.opts.Kind, file.Name, err)
		}
	}()
	return nil
}

// Wait blocks until background submissions have settled.
func (c *Controller[R]) Wait() {
	c.inflight.Wait()
}

func (c *Controller[R]) begin() (uint64, backend.Upload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return 0, backend.Upload{}, ErrClosed
	case c.view.State == Submitting:
		return 0, backend.Upload{}, ErrBusy
	case c.file == nil:
		c.opts.Notifier.Error(fmt.Sprintf("Please select %s first", c.opts.Kind.article()))
		return 0, backend.Upload{}, ErrNoSelection
	}

	c.gen++
	c.view.State = Submitting
	c.view.Error = ""
	c.view.SubmittedAt = c.opts.Clock.Now()
	c.view.CompletedAt = time.Time{}
	return c.gen, *c.file, nil
}

func (c *Controller[R]) run(ctx context.Context, gen uint64, file backend.Upload) error {
	res, err := c.opts.Process(ctx, file)
	now := c.opts.Clock.Now()

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		monitoring.Infof("discarding stale %s submission of %q", c.opts.Kind, file.Name)
		return err
	}

	sub := Submission{
		ID:         uuid.New(),
		Kind:       c.opts.Kind,
		FileName:   file.Name,
		StartedAt:  c.view.SubmittedAt,
		FinishedAt: now,
	}
	c.view.CompletedAt = now
	if err != nil {
		var zero R
		c.view.State = Failed
		c.view.Error = err.Error()
		c.view.Result, c.view.HasResult, c.view.ResultID = zero, false, ""
		sub.State, sub.Error = Failed, err.Error()
	} else {
		c.view.State = Succeeded
		c.view.Result, c.view.HasResult = res, true
		c.view.ResultID = ""
		if c.opts.ResultID != nil {
			c.view.ResultID = c.opts.ResultID(res)
		}
		sub.State, sub.ResultID = Succeeded, c.view.ResultID
		if c.opts.ItemCount != nil {
			sub.ItemCount = c.opts.ItemCount(res)
		}
	}
	c.mu.Unlock()

	label := strings.ToUpper(string(c.opts.Kind[:1])) + string(c.opts.Kind[1:])
	if err != nil {
		c.opts.Notifier.Error(fmt.Sprintf("Failed to process %s. Make sure the backend is running.", c.opts.Kind))
	} else {
		c.opts.Notifier.Success(label + " processed successfully")
	}

	if c.opts.Recorder != nil {
		if rerr := c.opts.Recorder.RecordSubmission(context.WithoutCancel(ctx), sub); rerr != nil {
			monitoring.Errorf("recording %s submission: %v", c.opts.Kind, rerr)
		}
	}
	return err
}

// Snapshot returns a copy of the controller's state.
func (c *Controller[R]) Snapshot() View[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Reset drops the selection and result, releasing the preview. It is
// rejected while a submission is in flight.
func (c *Controller[R]) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.view.State == Submitting {
		return ErrBusy
	}
	c.opts.Previews.Release(c.view.PreviewID)
	c.file = nil
	c.view = View[R]{Kind: c.opts.Kind}
	return nil
}

// Close tears the controller down. The preview is released and any
// submission still in flight will not update state when it completes.
func (c *Controller[R]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.opts.Previews.Release(c.view.PreviewID)
	c.view.PreviewID = ""
	c.file = nil
}
