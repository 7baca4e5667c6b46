package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/petems/wavtap/internal/app"
	"github.com/petems/wavtap/internal/audio"
	"github.com/petems/wavtap/internal/config"
	"github.com/petems/wavtap/internal/inject"
	"github.com/petems/wavtap/internal/logging"
	"github.com/petems/wavtap/internal/meter"
	"github.com/petems/wavtap/internal/permissions"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup, the PortAudio
// teardown in particular, happens before exit.
func run() int {
	configPath := flag.String("config", "", "path to config.yaml (default: platform config dir)")
	listDevices := flag.Bool("list", false, "list input devices and exit")
	writeConfig := flag.Bool("write-config", false, "write the resolved config to the config path and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [name]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Load config from XDG/Library/AppData
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return 1
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)
	log.Debug().Str("version", Version).Str("commit", Commit).Msg("wavtap starting")

	if *writeConfig {
		path := *configPath
		if path == "" {
			path = config.Path()
		}
		if err := cfg.SaveTo(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to write config")
			return 1
		}
		log.Info().Str("path", path).Msg("Wrote config")
		return 0
	}

	// macOS delivers silence until microphone access is granted
	if err := permissions.EnsurePermissions(); err != nil {
		log.Error().Err(err).Msg("Required permissions not granted")
		return 1
	}

	// Initialize audio capture
	capture, err := audio.New(cfg.Audio)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
		return 1
	}
	defer capture.Close()

	if *listDevices {
		devices, err := capture.ListDevices()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list devices")
			return 1
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %s (%s, %d ch)\n", marker, d.Name, d.HostAPI, d.Channels)
		}
		return 0
	}

	name := flag.Arg(0)
	if name == "" {
		name, err = promptName()
		if err != nil {
			log.Error().Err(err).Msg("Failed to read file name")
			return 1
		}
	}
	path := cfg.OutputPath(name)

	application, err := app.New(app.Config{
		Audio:     capture,
		Injector:  inject.New(cfg.Inject),
		Config:    cfg,
		Logger:    log,
		Out:       os.Stdout,
		TermWidth: meter.TerminalWidth(os.Stdout, 0),
	})
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	// Setup shutdown signal handling: an interrupt ends capture early and
	// still saves what was recorded.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Recording failed")
		return 1
	}
	return 0
}

// promptName asks for the recording name on stdin.
func promptName() (string, error) {
	fmt.Print("File name (without extension): ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	name := strings.TrimSpace(line)
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	return name, nil
}
