package ssh

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

const defaultPoolLimit = 32

// Result is the outcome of running one command on one host.
type Result struct {
	Host       string
	ExitStatus int
	Stdout     string
	Stderr     string

	// Err is set when the command could not be run on the host at all.
	Err error
}

// OK reports whether the command ran and exited 0.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitStatus == 0
}

// Pool runs commands on many hosts sharing one set of credentials.
type Pool struct {
	template *Client
	limit    int
}

// NewPool creates a pool. cfg.Host is ignored; hosts are given per Run.
// limit bounds the number of simultaneous sessions.
func NewPool(cfg *Config, limit int) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if limit <= 0 {
		limit = defaultPoolLimit
	}

	template, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Pool{template: template, limit: limit}, nil
}

// Run executes command on every host concurrently. One result is returned
// per host, in the order of hosts. A failing host never cancels the others.
func (p *Pool) Run(ctx context.Context, command string, hosts []string) []Result {
	log := logr.FromContextOrDiscard(ctx)
	results := make([]Result, len(hosts))

	var g errgroup.Group
	g.SetLimit(p.limit)

	for i, host := range hosts {
		g.Go(func() error {
			res := Result{Host: host}

			out, err := p.template.WithHost(host).Run(ctx, command)
			if out != nil {
				res.ExitStatus = out.ExitStatus
				res.Stdout = out.Stdout
				res.Stderr = out.Stderr
			}
			res.Err = err

			log.V(1).Info("Remote command finished", "host", host, "exitStatus", res.ExitStatus, "error", err)
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results
}
