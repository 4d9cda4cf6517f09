package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// TestContext returns a context with a reasonable timeout for tests.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// LogCapture collects log lines written through a funcr logger.
type LogCapture struct {
	mu    sync.Mutex
	lines []string
}

// NewLogCapture returns a capture and a logger writing to it at verbosity v.
func NewLogCapture(v int) (*LogCapture, logr.Logger) {
	c := &LogCapture{}
	log := funcr.New(func(prefix, args string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if prefix != "" {
			args = prefix + " " + args
		}
		c.lines = append(c.lines, args)
	}, funcr.Options{Verbosity: v})
	return c, log
}

// Lines returns a copy of the captured lines.
func (c *LogCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// ContextWithLogs returns a test context carrying a capturing logger.
func ContextWithLogs(t *testing.T, v int) (context.Context, *LogCapture) {
	t.Helper()
	capture, log := NewLogCapture(v)
	return logr.NewContext(TestContext(t), log), capture
}
