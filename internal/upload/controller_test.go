package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/httputil"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
	"github.com/banshee-data/anpr.dashboard/internal/preview"
	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// mp4Bytes is a minimal ftyp box that content sniffing reports as video/mp4.
func mp4Bytes() []byte {
	b := []byte{0, 0, 0, 24}
	b = append(b, "ftypmp42"...)
	b = append(b, 0, 0, 0, 0)
	b = append(b, "mp42isom"...)
	return b
}

type fakeRecorder struct {
	mu   sync.Mutex
	subs []Submission
}

func (r *fakeRecorder) RecordSubmission(_ context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
	return nil
}

func (r *fakeRecorder) all() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.subs...)
}

type result struct{ id string }

// gate is a Process func that blocks until released and counts calls.
type gate struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	res     result
	err     error
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) process(ctx context.Context, _ backend.Upload) (result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.release
	return g.res, g.err
}

func (g *gate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	ctrl     *Controller[result]
	notes    *notify.Recorder
	previews *preview.Store
	recorder *fakeRecorder
	clock    *timeutil.MockClock
}

func newFixture(process func(context.Context, backend.Upload) (result, error)) *fixture {
	f := &fixture{
		notes:    &notify.Recorder{},
		previews: preview.NewStore(),
		recorder: &fakeRecorder{},
		clock:    timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.ctrl = New(Options[result]{
		Kind:      KindImage,
		Process:   process,
		ResultID:  func(r result) string { return r.id },
		ItemCount: func(result) int { return 1 },
		Notifier:  f.notes,
		Previews:  f.previews,
		Recorder:  f.recorder,
		Clock:     f.clock,
	})
	return f
}

func TestSelect(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) { return result{}, nil })
	data := pngBytes(t)

	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "a.png", Data: data}))
	first := f.ctrl.Snapshot()
	assert.Equal(t, Selected, first.State)
	assert.Equal(t, "image/png", first.ContentType)
	assert.Equal(t, 1, f.previews.Len())

	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "b.png", Data: data}))
	second := f.ctrl.Snapshot()
	assert.NotEqual(t, first.PreviewID, second.PreviewID)
	assert.Equal(t, "b.png", second.FileName)
	assert.Equal(t, 1, f.previews.Len(), "previous preview released")
	_, ok := f.previews.Get(first.PreviewID)
	assert.False(t, ok)
}

func TestSelect_OtherImageFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var bmpBuf, tiffBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, img))
	require.NoError(t, tiff.Encode(&tiffBuf, img, nil))

	tests := []struct {
		name string
		file backend.Upload
		want string
	}{
		{"bmp", backend.Upload{Name: "car.bmp", Data: bmpBuf.Bytes()}, "image/bmp"},
		{"tiff", backend.Upload{Name: "car.tiff", ContentType: "image/tiff", Data: tiffBuf.Bytes()}, "image/tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(func(context.Context, backend.Upload) (result, error) { return result{}, nil })
			require.NoError(t, f.ctrl.Select(tt.file))
			v := f.ctrl.Snapshot()
			assert.Equal(t, Selected, v.State)
			assert.Equal(t, tt.want, v.ContentType)
		})
	}
}

func TestSelect_Rejects(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) { return result{}, nil })

	tests := []struct {
		name string
		file backend.Upload
	}{
		{"empty", backend.Upload{Name: "a.png"}},
		{"text", backend.Upload{Name: "notes.txt", Data: []byte("hello plates")}},
		{"video as image", backend.Upload{Name: "clip.mp4", Data: mp4Bytes()}},
		{"truncated png", backend.Upload{Name: "bad.png", Data: pngBytes(t)[:12]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ctrl.Select(tt.file)
			assert.ErrorIs(t, err, ErrUnsupportedFile)
			assert.Equal(t, Idle, f.ctrl.Snapshot().State)
			assert.Equal(t, 0, f.previews.Len())
		})
	}
}

func TestSubmit_NoSelection(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) {
		t.Fatal("backend must not be called")
		return result{}, nil
	})

	assert.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrNoSelection)
	_, errs := f.notes.Snapshot()
	assert.Equal(t, []string{"Please select an image first"}, errs)
	assert.Equal(t, Idle, f.ctrl.Snapshot().State)
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) {
		return result{id: "abc123"}, nil
	})
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	require.NoError(t, f.ctrl.Submit(context.Background()))

	v := f.ctrl.Snapshot()
	assert.Equal(t, Succeeded, v.State)
	assert.True(t, v.HasResult)
	assert.Equal(t, "abc123", v.Result.id)
	assert.Equal(t, "abc123", v.ResultID)
	assert.Empty(t, v.Error)

	ok, _ := f.notes.Snapshot()
	assert.Equal(t, []string{"Image processed successfully"}, ok)

	subs := f.recorder.all()
	require.Len(t, subs, 1)
	assert.Equal(t, Succeeded, subs[0].State)
	assert.Equal(t, "abc123", subs[0].ResultID)
	assert.Equal(t, "car.png", subs[0].FileName)
	assert.Equal(t, 1, subs[0].ItemCount)
}

func TestSubmit_Failure(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) {
		return result{}, &backend.Error{Op: "process-image", Kind: backend.NetworkUnreachable, Err: errors.New("refused")}
	})
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	err := f.ctrl.Submit(context.Background())
	assert.True(t, backend.IsNetworkUnreachable(err))

	v := f.ctrl.Snapshot()
	assert.Equal(t, Failed, v.State)
	assert.False(t, v.HasResult)
	assert.Contains(t, v.Error, "network unreachable")

	_, errs := f.notes.Snapshot()
	assert.Equal(t, []string{"Failed to process image. Make sure the backend is running."}, errs)
	assert.Equal(t, Failed, f.recorder.all()[0].State)
}

func TestSubmit_SingleInFlight(t *testing.T) {
	g := newGate()
	g.res = result{id: "r1"}
	f := newFixture(g.process)
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	require.NoError(t, f.ctrl.SubmitAsync(context.Background()))
	<-g.started
	assert.Equal(t, Submitting, f.ctrl.Snapshot().State)

	assert.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrBusy)
	assert.ErrorIs(t, f.ctrl.SubmitAsync(context.Background()), ErrBusy)
	assert.ErrorIs(t, f.ctrl.Reset(), ErrBusy)

	close(g.release)
	f.ctrl.Wait()

	assert.Equal(t, 1, g.callCount())
	v := f.ctrl.Snapshot()
	assert.Equal(t, Succeeded, v.State)
	assert.Equal(t, "r1", v.ResultID)
	assert.Equal(t, "car.png", v.FileName)
}

func TestSelect_SupersedesInFlight(t *testing.T) {
	g := newGate()
	g.res = result{id: "stale"}
	f := newFixture(g.process)
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	require.NoError(t, f.ctrl.SubmitAsync(context.Background()))
	<-g.started

	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "other.png", Data: pngBytes(t)}))
	v := f.ctrl.Snapshot()
	assert.Equal(t, Selected, v.State)
	assert.Equal(t, "other.png", v.FileName)
	assert.Equal(t, 1, f.previews.Len())

	close(g.release)
	f.ctrl.Wait()

	v = f.ctrl.Snapshot()
	assert.Equal(t, Selected, v.State)
	assert.False(t, v.HasResult)
	ok, errs := f.notes.Snapshot()
	assert.Empty(t, ok)
	assert.Empty(t, errs)
	assert.Empty(t, f.recorder.all())

	g.res = result{id: "fresh"}
	g.release = make(chan struct{})
	close(g.release)
	require.NoError(t, f.ctrl.Submit(context.Background()))
	<-g.started
	assert.Equal(t, "fresh", f.ctrl.Snapshot().ResultID)
}

func TestSubmit_ResubmitAfterSettle(t *testing.T) {
	calls := 0
	f := newFixture(func(context.Context, backend.Upload) (result, error) {
		calls++
		if calls == 1 {
			return result{}, errors.New("boom")
		}
		return result{id: "second"}, nil
	})
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	assert.Error(t, f.ctrl.Submit(context.Background()))
	assert.Equal(t, Failed, f.ctrl.Snapshot().State)

	require.NoError(t, f.ctrl.Submit(context.Background()))
	v := f.ctrl.Snapshot()
	assert.Equal(t, Succeeded, v.State)
	assert.Empty(t, v.Error)
	assert.Equal(t, 2, calls)
}

func TestSelect_ClearsPreviousResult(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) { return result{id: "old"}, nil })
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "a.png", Data: pngBytes(t)}))
	require.NoError(t, f.ctrl.Submit(context.Background()))

	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "b.png", Data: pngBytes(t)}))
	v := f.ctrl.Snapshot()
	assert.Equal(t, Selected, v.State)
	assert.False(t, v.HasResult)
	assert.Empty(t, v.ResultID)
}

func TestClose_DropsLateCompletion(t *testing.T) {
	g := newGate()
	g.res = result{id: "late"}
	f := newFixture(g.process)
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}))

	require.NoError(t, f.ctrl.SubmitAsync(context.Background()))
	<-g.started
	f.ctrl.Close()
	assert.Equal(t, 0, f.previews.Len(), "teardown releases the preview")

	close(g.release)
	f.ctrl.Wait()

	v := f.ctrl.Snapshot()
	assert.False(t, v.HasResult)
	assert.Empty(t, v.ResultID)
	ok, errs := f.notes.Snapshot()
	assert.Empty(t, ok)
	assert.Empty(t, errs)
	assert.Empty(t, f.recorder.all())

	assert.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrClosed)
	assert.ErrorIs(t, f.ctrl.Select(backend.Upload{Name: "a.png", Data: pngBytes(t)}), ErrClosed)
}

func TestReset(t *testing.T) {
	f := newFixture(func(context.Context, backend.Upload) (result, error) { return result{}, nil })
	require.NoError(t, f.ctrl.Select(backend.Upload{Name: "a.png", Data: pngBytes(t)}))
	require.NoError(t, f.ctrl.Reset())
	assert.Equal(t, Idle, f.ctrl.Snapshot().State)
	assert.Equal(t, 0, f.previews.Len())
	assert.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrNoSelection)
}

func TestVideoController(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"result_id":"v1","tracked_vehicles":[{"vehicle_id":3,"vehicle_type":"bus","best_frames":[]}]}`)
	mock.AddResponse(http.StatusOK, `{"error":"Could not open video file."}`)
	notes := &notify.Recorder{}
	ctrl := NewVideoController(backend.NewClient(mock, ""), Options[*backend.VideoResult]{Notifier: notes})

	require.NoError(t, ctrl.Select(backend.Upload{Name: "clip.mp4", Data: mp4Bytes()}))
	assert.Equal(t, "video/mp4", ctrl.Snapshot().ContentType)

	require.NoError(t, ctrl.Submit(context.Background()))
	v := ctrl.Snapshot()
	assert.Equal(t, "v1", v.ResultID)
	assert.Equal(t, "3", v.Result.Vehicles[0].VehicleID)

	require.NoError(t, ctrl.Submit(context.Background()))
	v = ctrl.Snapshot()
	assert.Equal(t, Succeeded, v.State)
	assert.Empty(t, v.Error)
	assert.Equal(t, "Could not open video file.", v.Result.Error)
	assert.Empty(t, v.Result.Vehicles)

	ok, errs := notes.Snapshot()
	assert.Equal(t, []string{"Video processed successfully", "Video processed successfully"}, ok)
	assert.Empty(t, errs)
}

func TestVideoController_RejectsImage(t *testing.T) {
	ctrl := NewVideoController(backend.NewClient(httputil.NewMockHTTPClient(), ""), Options[*backend.VideoResult]{})
	assert.ErrorIs(t, ctrl.Select(backend.Upload{Name: "car.png", Data: pngBytes(t)}), ErrUnsupportedFile)

	var notes notify.Recorder
	ctrl = NewVideoController(backend.NewClient(httputil.NewMockHTTPClient(), ""), Options[*backend.VideoResult]{Notifier: &notes})
	assert.ErrorIs(t, ctrl.Submit(context.Background()), ErrNoSelection)
	_, errs := notes.Snapshot()
	assert.Equal(t, []string{"Please select a video first"}, errs)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.False(t, Submitting.Settled())
	assert.True(t, Failed.Settled())
}
