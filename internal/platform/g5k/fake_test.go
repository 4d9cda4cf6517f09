package g5k

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/stackfleet/internal/platform/ssh"
)

// fakeExecutor answers commands by prefix and records every call.
type fakeExecutor struct {
	mu sync.Mutex

	ExecuteFunc func(ctx context.Context, command string) (string, error)

	Calls []string
}

func (f *fakeExecutor) Execute(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, command)
	f.mu.Unlock()

	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, command)
	}
	return "", fmt.Errorf("unexpected command: %s", command)
}

func (f *fakeExecutor) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// recordingRemote records the hosts handed to the wrapped runner.
type recordingRemote struct {
	*fakeRemote
	hosts *[]string
}

func (r *recordingRemote) Run(ctx context.Context, command string, hosts []string) []ssh.Result {
	*r.hosts = append(*r.hosts, hosts...)
	return r.fakeRemote.Run(ctx, command, hosts)
}

// fakeRemote returns canned results per host.
type fakeRemote struct {
	results  map[string]ssh.Result
	commands []string
}

func (f *fakeRemote) Run(_ context.Context, command string, hosts []string) []ssh.Result {
	f.commands = append(f.commands, command)
	out := make([]ssh.Result, len(hosts))
	for i, h := range hosts {
		r, ok := f.results[h]
		if !ok {
			r = ssh.Result{ExitStatus: 255}
		}
		r.Host = h
		out[i] = r
	}
	return out
}
