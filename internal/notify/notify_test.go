package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anpr.dashboard/internal/timeutil"
)

func TestFeed_RecentNewestFirst(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	f := NewFeed(4, clock)

	f.Success("one")
	clock.Advance(time.Second)
	f.Error("two")

	got := f.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Message)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, clock.Now(), got[0].At)
	assert.Equal(t, "one", got[1].Message)
	assert.Equal(t, LevelSuccess, got[1].Level)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
}

func TestFeed_Bounded(t *testing.T) {
	f := NewFeed(3, nil)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		f.Success(m)
	}

	got := f.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"e", "d", "c"}, messages(got))
	assert.Len(t, f.Recent(2), 2)
}

func TestFeed_Dismiss(t *testing.T) {
	f := NewFeed(0, nil)
	f.Success("keep")
	f.Error("drop")

	drop := f.Recent(1)[0]
	assert.True(t, f.Dismiss(drop.ID))
	assert.False(t, f.Dismiss(drop.ID))
	assert.False(t, f.Dismiss(uuid.Nil))
	assert.Equal(t, []string{"keep"}, messages(f.Recent(0)))
}

func TestFeed_Concurrent(t *testing.T) {
	f := NewFeed(8, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Success("x")
			_ = f.Recent(3)
		}()
	}
	wg.Wait()
	assert.Len(t, f.Recent(0), 8)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Success("ok")
	r.Error("bad")
	Discard.Error("ignored")

	s, e := r.Snapshot()
	assert.Equal(t, []string{"ok"}, s)
	assert.Equal(t, []string{"bad"}, e)
}

func messages(ts []Toast) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Message
	}
	return out
}
