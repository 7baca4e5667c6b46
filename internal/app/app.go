package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/petems/wavtap/internal/audio"
	"github.com/petems/wavtap/internal/config"
	"github.com/petems/wavtap/internal/inject"
	"github.com/petems/wavtap/internal/meter"
	"github.com/petems/wavtap/internal/wavfile"
	"github.com/rs/zerolog"
)

// fallbackWidth is used when neither the config nor the terminal gives a width.
const fallbackWidth = 80

type Config struct {
	Audio    audio.Capture
	Injector inject.Injector // Optional - can be nil
	Config   *config.Config
	Logger   zerolog.Logger
	// Out receives the meter row and the status lines.
	Out io.Writer
	// TermWidth is the terminal column count, 0 if unknown.
	TermWidth int
}

// App runs one capture session: open the device, record into a Buffer while
// drawing the meter, then write the Buffer out as a WAV file.
type App struct {
	audio  audio.Capture
	inj    inject.Injector
	cfg    *config.Config
	log    zerolog.Logger
	out    io.Writer
	outMu  sync.Mutex
	meter  *meter.Meter
	buffer *audio.Buffer

	desc    audio.StreamDescriptor
	opened  bool
	started bool
}

func New(cfg Config) (*App, error) {
	a := &App{
		audio:  cfg.Audio,
		inj:    injectorOrNil(cfg.Injector),
		cfg:    cfg.Config,
		log:    cfg.Logger,
		out:    cfg.Out,
		buffer: audio.NewBuffer(0),
	}
	if a.out == nil {
		a.out = io.Discard
	}

	if a.cfg.Meter.Enabled {
		glyphs, err := meter.ParseGlyphs(a.cfg.Meter.Glyphs)
		if err != nil {
			return nil, fmt.Errorf("meter: %w", err)
		}
		width := a.cfg.Meter.Width
		if width == 0 {
			width = cfg.TermWidth
		}
		if width <= 0 {
			width = fallbackWidth
		}
		a.meter = meter.New(a.out, width, glyphs)
	}

	return a, nil
}

// injectorOrNil maps a nil pointer stored in the interface to a nil interface.
func injectorOrNil(inj inject.Injector) inject.Injector {
	if inj == nil {
		return nil
	}
	if v := reflect.ValueOf(inj); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return inj
}

// Buffer returns the sample buffer the session records into.
func (a *App) Buffer() *audio.Buffer {
	return a.buffer
}

// Open negotiates the input stream and prints the device summary.
func (a *App) Open() (audio.StreamDescriptor, error) {
	desc, err := a.audio.Open()
	if err != nil {
		return audio.StreamDescriptor{}, err
	}
	a.desc = desc
	a.opened = true

	a.log.Info().
		Str("device", desc.DeviceName).
		Uint32("sample_rate", desc.SampleRate).
		Uint16("channels", desc.Channels).
		Str("buffer_size", desc.BufferSize()).
		Dur("latency", desc.Latency).
		Msg("Opened input stream")
	fmt.Fprintln(a.out, desc.String())

	return desc, nil
}

// Record captures until ctx is done, the configured duration elapses or the
// device closes the stream. In the last case the stream error is returned;
// whatever arrived before it stays in the buffer.
func (a *App) Record(ctx context.Context) error {
	if !a.opened {
		return errors.New("app: Record called before Open")
	}

	fatal := make(chan error, 1)

	onBlock := func(block []float32) {
		a.buffer.Append(block)
		if a.meter != nil {
			a.outMu.Lock()
			a.meter.Draw(block)
			a.outMu.Unlock()
		}
	}
	onError := func(err error) {
		var se *audio.StreamError
		if errors.As(err, &se) && se.Fatal {
			a.log.Error().Err(err).Msg("Input stream closed")
			select {
			case fatal <- err:
			default:
			}
			return
		}
		a.log.Warn().Err(err).Msg("Input stream error")
	}

	// rows drawn by the first blocks wait for the banner
	a.outMu.Lock()
	stream, err := a.audio.Start(onBlock, onError)
	if err != nil {
		a.outMu.Unlock()
		return err
	}
	a.started = true
	a.log.Info().Msg("Starting capture")

	var timeout <-chan time.Time
	if a.cfg.Duration > 0 {
		timer := time.NewTimer(a.cfg.Duration)
		defer timer.Stop()
		timeout = timer.C
		fmt.Fprintf(a.out, "Recording audio for %s...\n", a.cfg.Duration)
	} else {
		fmt.Fprintln(a.out, "Recording audio until interrupted...")
	}
	a.outMu.Unlock()

	var streamErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Capture interrupted")
	case <-timeout:
		a.log.Info().Dur("duration", a.cfg.Duration).Msg("Capture duration reached")
	case streamErr = <-fatal:
	}

	if err := stream.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to stop input stream cleanly")
	}

	stats := stream.Stats()
	a.log.Info().
		Uint64("blocks", stats.Blocks).
		Uint64("samples", stats.Samples).
		Uint64("incidents", stats.Incidents).
		Msg("Stopped capture")

	if a.meter != nil {
		a.meter.Clear()
	}
	fmt.Fprintf(a.out, "Recorded %d samples.\n", a.buffer.Len())

	return streamErr
}

// Save encodes everything recorded so far to path. It must only be called
// after Record has returned.
func (a *App) Save(ctx context.Context, path string) error {
	err := a.buffer.Read(func(samples []float32) error {
		return wavfile.Encode(samples, a.desc.SampleRate, a.desc.Channels, path)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	info, err := wavfile.Inspect(path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	a.log.Info().
		Str("path", path).
		Int("samples", info.Samples).
		Uint32("sample_rate", info.SampleRate).
		Uint16("channels", info.Channels).
		Msg("Saved recording")
	fmt.Fprintf(a.out, "Audio saved: %s\n", path)

	if a.inj != nil {
		if err := a.inj.Copy(ctx, path); err != nil {
			a.log.Warn().Err(err).Msg("Failed to copy path to clipboard")
		}
	}
	return nil
}

// Run opens, records and saves to path. A device failure during capture still
// saves what was buffered; the stream error is returned alongside any save
// error.
func (a *App) Run(ctx context.Context, path string) error {
	if _, err := a.Open(); err != nil {
		return err
	}

	recErr := a.Record(ctx)
	if !a.started {
		return recErr
	}
	// an interrupt ends capture, not the save that follows it
	saveErr := a.Save(context.WithoutCancel(ctx), path)

	return errors.Join(recErr, saveErr)
}
