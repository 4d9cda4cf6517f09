package g5k

import (
	"context"
	"strings"

	"github.com/imamik/stackfleet/internal/platform/ssh"
)

// Executor runs a shell command on the site frontend and returns its
// output. A non-zero exit status is an error.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// RemoteRunner runs one command on many hosts.
type RemoteRunner interface {
	Run(ctx context.Context, command string, hosts []string) []ssh.Result
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@,+", r)
}
