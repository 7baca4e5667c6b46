package inject

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/petems/wavtap/internal/config"
)

var ErrClipboardUnsupported = errors.New("no clipboard utility available")

type clipboardInjector struct {
	cfg   config.InjectConfig
	write func(string) error
}

// New creates a new clipboard injector. Copy is a no-op unless
// cfg.CopyPath is set.
func New(cfg config.InjectConfig) Injector {
	return &clipboardInjector{
		cfg:   cfg,
		write: clipboard.WriteAll,
	}
}

// Copy places text on the system clipboard.
func (c *clipboardInjector) Copy(ctx context.Context, text string) error {
	if !c.cfg.CopyPath {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
