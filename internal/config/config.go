package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Latency presets understood by the capture driver.
const (
	LatencyLow  = "low"
	LatencyHigh = "high"
)

// DefaultGlyphs is the amplitude ramp used by the meter, quietest first.
const DefaultGlyphs = "▁▂▃▄▅▆▇▉"

type Config struct {
	LogLevel  string        `yaml:"log_level"`
	OutputDir string        `yaml:"output_dir"`
	Duration  time.Duration `yaml:"duration"` // 0 records until interrupted
	Audio     AudioConfig   `yaml:"audio"`
	Meter     MeterConfig   `yaml:"meter"`
	Inject    InjectConfig  `yaml:"inject"`
}

type AudioConfig struct {
	Device          string        `yaml:"device"`            // empty selects the default input device
	SampleRate      int           `yaml:"sample_rate"`       // 0 uses the device default
	Channels        int           `yaml:"channels"`          // 0 records up to two channels (stereo)
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // 0 lets the driver choose
	Latency         string        `yaml:"latency"`
	StallTimeout    time.Duration `yaml:"stall_timeout"`
}

type MeterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Glyphs  string `yaml:"glyphs"`
	Width   int    `yaml:"width"` // 0 follows the terminal
}

type InjectConfig struct {
	CopyPath bool `yaml:"copy_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		OutputDir: ".",
		Duration:  time.Hour,
		Audio: AudioConfig{
			Latency:      LatencyLow,
			StallTimeout: 10 * time.Second,
		},
		Meter: MeterConfig{
			Enabled: true,
			Glyphs:  DefaultGlyphs,
		},
	}
}

// Load reads the config from disk or returns defaults, then applies
// environment overrides (a .env file in the working directory is honoured).
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom is Load with an explicit file path. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("WAVTAP_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("WAVTAP_DEVICE"); v != "" {
		c.Audio.Device = v
	}
	if v := os.Getenv("WAVTAP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WAVTAP_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: WAVTAP_DURATION: %w", err)
		}
		c.Duration = d
	}
	return nil
}

// Validate reports every out-of-range field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration %s must not be negative", c.Duration))
	}
	if c.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", c.Audio.SampleRate))
	}
	if c.Audio.Channels < 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must not be negative", c.Audio.Channels))
	}
	if c.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must not be negative", c.Audio.FramesPerBuffer))
	}
	if c.Audio.StallTimeout < 0 {
		errs = append(errs, fmt.Errorf("audio.stall_timeout %s must not be negative", c.Audio.StallTimeout))
	}
	switch c.Audio.Latency {
	case "", LatencyLow, LatencyHigh:
	default:
		errs = append(errs, fmt.Errorf("audio.latency %q is invalid; valid values: low, high", c.Audio.Latency))
	}
	if n := utf8.RuneCountInString(c.Meter.Glyphs); c.Meter.Glyphs != "" && n != 8 {
		errs = append(errs, fmt.Errorf("meter.glyphs must hold 8 symbols, got %d", n))
	}
	if c.Meter.Width < 0 {
		errs = append(errs, fmt.Errorf("meter.width %d must not be negative", c.Meter.Width))
	}

	return errors.Join(errs...)
}

// Save writes the config to Path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config to path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// OutputPath joins a bare recording name with the output directory and
// appends the .wav extension when missing.
func (c *Config) OutputPath(name string) string {
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		name += ".wav"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "wavtap", "config.yaml")
}
