// Package localexec runs installer commands on the operator's machine and
// streams their output into the structured log.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// tailLines is how many trailing stderr lines are kept for error messages.
const tailLines = 10

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string // last lines of stderr
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner executes local commands.
type Runner struct {
	// BaseEnv is the environment extra variables are appended to. Nil means
	// the current process environment.
	BaseEnv []string
}

// New returns a Runner inheriting the process environment.
func New() *Runner {
	return &Runner{}
}

// Run executes name with args in dir. env entries (KEY=value) are added to
// the base environment. Output lines are logged through the logger in ctx,
// stdout at V(1) and stderr at V(0). Cancelling ctx kills the command.
func (r *Runner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("command", name)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string{}, base...), env...)

	stdout := &lineLogger{log: log.V(1), stream: "stdout"}
	stderr := &lineLogger{log: log, stream: "stderr", keep: tailLines}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.flush()
	stderr.flush()

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: name, ExitCode: exitErr.ExitCode(), Stderr: stderr.tail()}
	}
	return fmt.Errorf("failed to run %s: %w", name, err)
}

// lineLogger is an io.Writer that logs every complete line written to it.
type lineLogger struct {
	mu     sync.Mutex
	log    logr.Logger
	stream string
	buf    bytes.Buffer

	keep int
	last []string
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: put it back for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineLogger) emit(line string) {
	if line == "" {
		return
	}
	w.log.Info(line, "stream", w.stream)
	if w.keep > 0 {
		w.last = append(w.last, line)
		if len(w.last) > w.keep {
			w.last = w.last[1:]
		}
	}
}

func (w *lineLogger) tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.last, "\n")
}
