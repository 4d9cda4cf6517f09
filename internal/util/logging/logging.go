// Package logging builds the structured logger shared by every stackfleet
// command. Records are produced by a log/slog handler and exposed as a
// logr.Logger, which is passed down through context.Context so that each
// concurrently running group can carry its own key/value scope.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
)

// Format selects the slog handler.
type Format string

const (
	// FormatText renders human-readable key=value lines.
	FormatText Format = "text"
	// FormatJSON renders one JSON object per record.
	FormatJSON Format = "json"
)

// Options configures the logger behavior.
type Options struct {
	Format Format

	// Verbosity is the highest logr V-level that is emitted. 0 logs Info and
	// Error only, 1 adds debug output such as per-host probe results.
	Verbosity int

	// Output defaults to os.Stderr so that reports on stdout stay parseable.
	Output io.Writer
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New builds a logr.Logger backed by a slog handler.
func New(opts Options) (logr.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	// logr V(n) maps onto slog level -n.
	handlerOpts := &slog.HandlerOptions{Level: slog.Level(-opts.Verbosity)}

	var handler slog.Handler
	switch opts.Format {
	case FormatText, "":
		handler = slog.NewTextHandler(out, handlerOpts)
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q (expected text or json)", opts.Format)
	}

	return logr.FromSlogHandler(handler), nil
}

// IntoContext stores the logger in ctx.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return logr.NewContext(ctx, log)
}

// FromContext returns the logger carried by ctx, or a discarding logger.
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
