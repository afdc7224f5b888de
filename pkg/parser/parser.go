// Package parser turns trade-route automation base-log text into typed events.
//
// Each line is classified on its own by trying a fixed, ordered list of line
// shapes; lines matching none of them become Generic events. Classification
// never fails.
package parser

import (
	"context"
	"io"
	"time"

	"github.com/routelens/routelens/internal/model"
)

// Parser streams events from a reader.
// Implementations must be safe for concurrent use and must not
// retain references to the output channel after returning.
type Parser interface {
	// Parse reads from r and sends parsed events to out in line order.
	// It should respect context cancellation.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- model.Event) error
}

// Config holds parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// MaxLineSize bounds a single line; 0 means unlimited.
	MaxLineSize int

	// Location is the zone log timestamps are read in (time.Local when nil).
	Location *time.Location

	// KeepUntimed also emits lines without a leading timestamp.
	KeepUntimed bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:  64 * 1024,
		MaxLineSize: 16 * 1024 * 1024,
	}
}
