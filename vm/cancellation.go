package vm

import (
	"context"
	"fmt"
)

// cancelCheckInterval is how many steps Run executes between checks of its
// context.
const cancelCheckInterval = 1024

// checkContext returns ErrCanceled wrapping the context's error once ctx is
// done.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return nil
}
