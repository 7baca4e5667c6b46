package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petems/wavtap/internal/audio"
	"github.com/petems/wavtap/internal/config"
	"github.com/petems/wavtap/internal/wavfile"
	"github.com/rs/zerolog"
)

// Mock implementations for testing
type mockControl struct {
	mu    sync.Mutex
	stops int
}

func (m *mockControl) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *mockControl) Close() error {
	return nil
}

type mockCapture struct {
	desc     audio.StreamDescriptor
	openErr  error
	startErr error
	blocks   [][]float32
	status   []audio.BlockStatus
	fail     error

	ctl       mockControl
	delivered chan struct{}
}

func newMockCapture(blocks ...[]float32) *mockCapture {
	return &mockCapture{
		desc:      audio.StreamDescriptor{DeviceName: "Mock Mic", SampleRate: 44100, Channels: 1},
		blocks:    blocks,
		delivered: make(chan struct{}),
	}
}

func (m *mockCapture) Open() (audio.StreamDescriptor, error) {
	return m.desc, m.openErr
}

func (m *mockCapture) Start(onBlock audio.BlockFunc, onError audio.ErrorFunc) (*audio.Stream, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	s := audio.NewStream(&m.ctl, onBlock, onError)
	go func() {
		defer close(m.delivered)
		for i, b := range m.blocks {
			var st audio.BlockStatus
			if i < len(m.status) {
				st = m.status[i]
			}
			// drivers hand out a reused slice
			reused := slices.Clone(b)
			s.Deliver(reused, st)
			clear(reused)
		}
		if m.fail != nil {
			s.Fail(m.fail)
		}
	}()
	return s, nil
}

func (m *mockCapture) ListDevices() ([]audio.AudioDevice, error) {
	return []audio.AudioDevice{{Name: "Mock Mic", Default: true}}, nil
}

func (m *mockCapture) Close() error {
	return nil
}

type mockInjector struct {
	mu     sync.Mutex
	copied []string
}

func (m *mockInjector) Copy(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copied = append(m.copied, text)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Duration = 0
	return cfg
}

func newTestApp(t *testing.T, capture audio.Capture, cfg *config.Config, out *bytes.Buffer, inj *mockInjector) *App {
	t.Helper()
	c := Config{
		Audio:     capture,
		Config:    cfg,
		Logger:    zerolog.Nop(),
		Out:       out,
		TermWidth: 3,
	}
	if inj != nil {
		c.Injector = inj
	}
	a, err := New(c)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

// cancelAfterDelivery ends capture once the mock has pushed every block.
func cancelAfterDelivery(m *mockCapture) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.delivered
		cancel()
	}()
	return ctx
}

func readPCM(t *testing.T, path string) []int16 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []int16
	for i := 44; i+1 < len(data); i += 2 {
		out = append(out, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	return out
}

func TestRunRecordsAndSaves(t *testing.T) {
	capture := newMockCapture([]float32{0.0, 0.5, -1.0}, []float32{1.0})
	var out bytes.Buffer
	inj := &mockInjector{}
	a := newTestApp(t, capture, testConfig(), &out, inj)

	path := filepath.Join(t.TempDir(), "take.wav")
	if err := a.Run(cancelAfterDelivery(capture), path); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := a.Buffer().Snapshot(); !slices.Equal(got, []float32{0.0, 0.5, -1.0, 1.0}) {
		t.Fatalf("buffer = %v", got)
	}

	want := []int16{0, 16383, -32767, 32767}
	if got := readPCM(t, path); !slices.Equal(got, want) {
		t.Fatalf("pcm = %v, want %v", got, want)
	}

	info, err := wavfile.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 1 || info.Samples != 4 {
		t.Fatalf("Inspect() = %+v", info)
	}

	text := out.String()
	for _, line := range []string{"Device: Mock Mic", "Recording audio until interrupted", "Recorded 4 samples.", "Audio saved: " + path} {
		if !strings.Contains(text, line) {
			t.Errorf("output missing %q:\n%s", line, text)
		}
	}
	// meter rows at width 3: "▁▄▉\r" then "▉\r"
	if !strings.Contains(text, "▁▄▉\r▉\r") {
		t.Errorf("meter rows missing from output: %q", text)
	}

	if !slices.Equal(inj.copied, []string{path}) {
		t.Errorf("clipboard got %v", inj.copied)
	}
	if capture.ctl.stops != 1 {
		t.Errorf("stream stopped %d times, want 1", capture.ctl.stops)
	}
}

func TestRunStopsAfterDuration(t *testing.T) {
	capture := newMockCapture([]float32{0.25, 0.25})
	cfg := testConfig()
	cfg.Duration = 30 * time.Millisecond
	var out bytes.Buffer
	a := newTestApp(t, capture, cfg, &out, nil)

	path := filepath.Join(t.TempDir(), "timed.wav")
	start := time.Now()
	if err := a.Run(context.Background(), path); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("Run() returned after %s, before the duration", elapsed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("recording not saved: %v", err)
	}
}

func TestRunSavesAfterStreamClosed(t *testing.T) {
	capture := newMockCapture([]float32{0.1, 0.2}, []float32{0.3})
	capture.fail = audio.ErrStreamClosed
	var out bytes.Buffer
	a := newTestApp(t, capture, testConfig(), &out, nil)

	path := filepath.Join(t.TempDir(), "partial.wav")
	err := a.Run(context.Background(), path)
	if !errors.Is(err, audio.ErrStreamClosed) {
		t.Fatalf("Run() error = %v, want ErrStreamClosed", err)
	}

	info, ierr := wavfile.Inspect(path)
	if ierr != nil {
		t.Fatalf("buffered audio was not saved: %v", ierr)
	}
	if info.Samples != 3 {
		t.Fatalf("saved %d samples, want 3", info.Samples)
	}
}

func TestRunNonFatalErrorsKeepRecording(t *testing.T) {
	capture := newMockCapture([]float32{0.1}, []float32{0.2}, []float32{0.3})
	capture.status = []audio.BlockStatus{{}, {Overflow: true}, {}}
	var out bytes.Buffer
	a := newTestApp(t, capture, testConfig(), &out, nil)

	path := filepath.Join(t.TempDir(), "overflow.wav")
	if err := a.Run(cancelAfterDelivery(capture), path); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := a.Buffer().Len(); got != 3 {
		t.Fatalf("buffer holds %d samples, want 3", got)
	}
}

func TestRunOpenFailureCreatesNoFile(t *testing.T) {
	capture := newMockCapture()
	capture.openErr = audio.ErrDeviceUnavailable
	a := newTestApp(t, capture, testConfig(), &bytes.Buffer{}, nil)

	path := filepath.Join(t.TempDir(), "never.wav")
	if err := a.Run(context.Background(), path); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Run() error = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file created despite open failure: %v", err)
	}
}

func TestRunStartFailureCreatesNoFile(t *testing.T) {
	capture := newMockCapture()
	capture.startErr = errors.New("device busy")
	var out bytes.Buffer
	a := newTestApp(t, capture, testConfig(), &out, nil)

	path := filepath.Join(t.TempDir(), "never.wav")
	if err := a.Run(context.Background(), path); err == nil {
		t.Fatal("Run() should fail when the stream cannot start")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file created despite start failure: %v", err)
	}
	if strings.Contains(out.String(), "Recording audio") {
		t.Fatalf("recording banner printed for a stream that never started:\n%s", out.String())
	}
}

func TestRunWithNilInjectorPointer(t *testing.T) {
	capture := newMockCapture([]float32{0.5})
	var inj *mockInjector
	a, err := New(Config{
		Audio:    capture,
		Injector: inj,
		Config:   testConfig(),
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "take.wav")
	if err := a.Run(cancelAfterDelivery(capture), path); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("recording not saved: %v", err)
	}
}

func TestRunEmptyRecording(t *testing.T) {
	capture := newMockCapture()
	a := newTestApp(t, capture, testConfig(), &bytes.Buffer{}, nil)

	path := filepath.Join(t.TempDir(), "silent.wav")
	if err := a.Run(cancelAfterDelivery(capture), path); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() != 44 {
		t.Fatalf("file size = %d, want 44", st.Size())
	}
}

func TestSaveFailureKeepsBuffer(t *testing.T) {
	capture := newMockCapture([]float32{0.5, 0.5})
	inj := &mockInjector{}
	a := newTestApp(t, capture, testConfig(), &bytes.Buffer{}, inj)

	path := filepath.Join(t.TempDir(), "no", "such", "dir", "take.wav")
	err := a.Run(cancelAfterDelivery(capture), path)
	if !errors.Is(err, wavfile.ErrFileCreate) {
		t.Fatalf("Run() error = %v, want ErrFileCreate", err)
	}
	if got := a.Buffer().Len(); got != 2 {
		t.Fatalf("buffer lost samples after failed save: %d", got)
	}
	if len(inj.copied) != 0 {
		t.Fatal("path copied to clipboard after failed save")
	}

	// the caller can retry somewhere writable
	retry := filepath.Join(t.TempDir(), "take.wav")
	if err := a.Save(context.Background(), retry); err != nil {
		t.Fatalf("Save() retry error = %v", err)
	}
}

func TestRecordBeforeOpen(t *testing.T) {
	a := newTestApp(t, newMockCapture(), testConfig(), &bytes.Buffer{}, nil)
	if err := a.Record(context.Background()); err == nil {
		t.Fatal("Record() before Open should fail")
	}
}

func TestNewRejectsBadGlyphs(t *testing.T) {
	cfg := testConfig()
	cfg.Meter.Glyphs = "abc"
	_, err := New(Config{Audio: newMockCapture(), Config: cfg, Logger: zerolog.Nop()})
	if err == nil {
		t.Fatal("New() should reject a short glyph table")
	}
}

func TestMeterDisabled(t *testing.T) {
	capture := newMockCapture([]float32{1, 1, 1})
	cfg := testConfig()
	cfg.Meter.Enabled = false
	var out bytes.Buffer
	a := newTestApp(t, capture, cfg, &out, nil)

	if err := a.Run(cancelAfterDelivery(capture), filepath.Join(t.TempDir(), "q.wav")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(out.String(), "▉") {
		t.Fatalf("meter drawn while disabled: %q", out.String())
	}
}
