package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
)

func init() {
	monitoring.SetLogger(nil)
}

type memPersister struct {
	kv      map[string]string
	saves   int
	loadErr error
}

func (m *memPersister) LoadSettings(context.Context) (map[string]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]string, len(m.kv))
	for k, v := range m.kv {
		out[k] = v
	}
	return out, nil
}

func (m *memPersister) SaveSetting(_ context.Context, key, value string) error {
	if m.kv == nil {
		m.kv = map[string]string{}
	}
	m.kv[key] = value
	m.saves++
	return nil
}

type fakeOCR struct {
	mode   backend.OCRMode
	setErr error
	posted []backend.OCRMode
}

func (f *fakeOCR) GetOCRMode(context.Context) (backend.OCRMode, error) { return f.mode, nil }

func (f *fakeOCR) SetOCRMode(_ context.Context, m backend.OCRMode) (backend.OCRMode, error) {
	f.posted = append(f.posted, m)
	if f.setErr != nil {
		return "", f.setErr
	}
	f.mode = m
	return m, nil
}

func TestDefaults(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, Values{Theme: ThemeLight, OCRMode: backend.OCRModeLocal}, s.Values())
}

func TestLoad(t *testing.T) {
	p := &memPersister{kv: map[string]string{KeyTheme: "dark", KeyOCRMode: "roboflow"}}
	s := NewStore(p, nil)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, ThemeDark, s.Theme())
	assert.Equal(t, backend.OCRModeRoboflow, s.OCRMode())
}

func TestLoad_IgnoresInvalid(t *testing.T) {
	p := &memPersister{kv: map[string]string{KeyTheme: "purple", KeyOCRMode: "cloud"}}
	s := NewStore(p, nil)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, ThemeLight, s.Theme())
	assert.Equal(t, backend.OCRModeLocal, s.OCRMode())
}

func TestLoad_Error(t *testing.T) {
	s := NewStore(&memPersister{loadErr: errors.New("disk")}, nil)
	assert.Error(t, s.Load(context.Background()))
}

func TestTheme(t *testing.T) {
	p := &memPersister{}
	s := NewStore(p, nil)
	ctx := context.Background()

	got, err := s.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, got)
	assert.Equal(t, "dark", p.kv[KeyTheme])

	require.NoError(t, s.SetTheme(ctx, ThemeLight))
	assert.Equal(t, "light", p.kv[KeyTheme])

	assert.ErrorIs(t, s.SetTheme(ctx, "sepia"), ErrInvalidTheme)
	assert.Equal(t, 2, p.saves)
}

func TestToggleOCRMode(t *testing.T) {
	p := &memPersister{}
	notes := &notify.Recorder{}
	s := NewStore(p, notes)
	client := &fakeOCR{mode: backend.OCRModeLocal}
	ctx := context.Background()

	m, err := s.ToggleOCRMode(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, backend.OCRModeRoboflow, m)
	assert.Equal(t, "roboflow", p.kv[KeyOCRMode])

	m, err = s.ToggleOCRMode(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, backend.OCRModeLocal, m)

	assert.Equal(t, []backend.OCRMode{backend.OCRModeRoboflow, backend.OCRModeLocal}, client.posted)
	ok, _ := notes.Snapshot()
	assert.Equal(t, []string{"Switched to Roboflow OCR", "Switched to Local OCR"}, ok)
}

func TestToggleOCRMode_Failure(t *testing.T) {
	notes := &notify.Recorder{}
	s := NewStore(&memPersister{}, notes)
	client := &fakeOCR{setErr: &backend.Error{Op: "set-ocr-mode", Kind: backend.NonOKStatus, StatusCode: 400}}

	m, err := s.ToggleOCRMode(context.Background(), client)
	assert.True(t, backend.IsNonOKStatus(err))
	assert.Equal(t, backend.OCRModeLocal, m)
	assert.Equal(t, backend.OCRModeLocal, s.OCRMode())
	_, errs := notes.Snapshot()
	assert.Equal(t, []string{"Failed to switch OCR mode"}, errs)
}

func TestSyncOCRMode(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.SyncOCRMode(context.Background(), &fakeOCR{mode: backend.OCRModeRoboflow}))
	assert.Equal(t, backend.OCRModeRoboflow, s.OCRMode())
}
