package inject

import "context"

// Injector defines the interface for handing text to the user's desktop
type Injector interface {
	Copy(ctx context.Context, text string) error
}
