package g5k

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/util/retry"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultStartTimeout = 30 * time.Minute
	defaultMaxRetries   = 3
	defaultRetryDelay   = 2 * time.Second

	// jobCommand keeps a deploy job alive until its walltime expires.
	jobCommand = "sleep infinity"
)

var jobIDRegex = regexp.MustCompile(`OAR_JOB_ID=(\d+)`)

// Job states reported by oarstat.
const (
	stateRunning    = "Running"
	stateError      = "Error"
	stateTerminated = "Terminated"
	stateFinishing  = "Finishing"
)

// JobEndedError is returned by WaitStart when a job ends before running.
type JobEndedError struct {
	JobID int
	State string
}

func (e *JobEndedError) Error() string {
	return fmt.Sprintf("job %d ended before it started running (state %s)", e.JobID, e.State)
}

// Scheduler manages OAR jobs of one site.
type Scheduler struct {
	site         string
	exec         Executor
	pollInterval time.Duration
	startTimeout time.Duration
	maxRetries   int
	retryDelay   time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets the interval between job state polls.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithStartTimeout bounds how long WaitStart waits for a job to run.
func WithStartTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.startTimeout = d }
}

// WithQueryRetries sets how read-only frontend commands are retried.
func WithQueryRetries(maxRetries int, initialDelay time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = initialDelay
	}
}

// NewScheduler creates a scheduler for the site reached through exec.
func NewScheduler(site string, exec Executor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		site:         site,
		exec:         exec,
		pollInterval: defaultPollInterval,
		startTimeout: defaultStartTimeout,
		maxRetries:   defaultMaxRetries,
		retryDelay:   defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OarsubCommand builds the submission command for req.
func OarsubCommand(req fleet.ReservationRequest) string {
	var props []string
	if req.Cluster != "" {
		props = append(props, fmt.Sprintf("cluster='%s'", req.Cluster))
	}
	if req.Switch != "" {
		props = append(props, fmt.Sprintf("switch='%s'", req.Switch))
	}

	nodes := fmt.Sprintf("/nodes=%d", req.Nodes)
	if len(props) > 0 {
		nodes = "{" + strings.Join(props, " and ") + "}" + nodes
	}

	resources := nodes
	if req.Overlay {
		resources = "{type='kavlan'}/vlan=1+" + nodes
	}
	resources += ",walltime=" + req.Walltime

	args := []string{"oarsub", "-t", "deploy"}
	if req.Name != "" {
		args = append(args, "-n", shellQuote(req.Name))
	}
	args = append(args, "-l", shellQuote(resources), shellQuote(jobCommand))
	return strings.Join(args, " ")
}

// Reserve submits a new job and returns its id. Submission is not retried.
func (s *Scheduler) Reserve(ctx context.Context, req fleet.ReservationRequest) (int, error) {
	if err := s.checkSite(req.Site); err != nil {
		return 0, err
	}
	if req.Nodes < 1 {
		return 0, fmt.Errorf("reservation needs at least one node, got %d", req.Nodes)
	}

	out, err := s.exec.Execute(ctx, OarsubCommand(req))
	if err != nil {
		return 0, fmt.Errorf("failed to submit job: %w", err)
	}

	m := jobIDRegex.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("oarsub did not report a job id: %s", strings.TrimSpace(out))
	}
	jobID, _ := strconv.Atoi(m[1])

	logr.FromContextOrDiscard(ctx).Info("Submitted job", "job", jobID, "site", s.site, "nodes", req.Nodes, "walltime", req.Walltime)
	return jobID, nil
}

// WaitStart polls the job until it runs.
func (s *Scheduler) WaitStart(ctx context.Context, jobID int) error {
	log := logr.FromContextOrDiscard(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		job, err := s.status(ctx, jobID)
		if err != nil {
			return err
		}

		switch job.State {
		case stateRunning:
			log.Info("Job is running", "job", jobID)
			return nil
		case stateError, stateTerminated, stateFinishing:
			return &JobEndedError{JobID: jobID, State: job.State}
		}

		log.V(1).Info("Waiting for job to start", "job", jobID, "state", job.State)
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for job %d to start: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ListNodes returns the physical addresses assigned to the job, sorted and
// without duplicates.
func (s *Scheduler) ListNodes(ctx context.Context, jobID int, site string) ([]string, error) {
	if err := s.checkSite(site); err != nil {
		return nil, err
	}

	job, err := s.status(ctx, jobID)
	if err != nil {
		return nil, err
	}

	nodes := slices.Clone(job.AssignedNetworkAddress)
	slices.Sort(nodes)
	nodes = slices.Compact(nodes)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("job %d has no assigned nodes", jobID)
	}
	return nodes, nil
}

// OverlayID returns the kavlan id reserved with the job.
func (s *Scheduler) OverlayID(ctx context.Context, jobID int, site string) (int, error) {
	if err := s.checkSite(site); err != nil {
		return 0, err
	}

	out, err := s.query(ctx, fmt.Sprintf("kavlan -V -j %d", jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to get overlay id of job %d: %w", jobID, err)
	}

	id, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("job %d has no overlay network: %q", jobID, strings.TrimSpace(out))
	}
	return id, nil
}

// EnableOverlay enables the overlay network of the job.
func (s *Scheduler) EnableOverlay(ctx context.Context, jobID int, site string) error {
	if err := s.checkSite(site); err != nil {
		return err
	}
	if _, err := s.exec.Execute(ctx, fmt.Sprintf("kavlan -e -j %d", jobID)); err != nil {
		return fmt.Errorf("failed to enable overlay of job %d: %w", jobID, err)
	}
	return nil
}

// Release deletes the job.
func (s *Scheduler) Release(ctx context.Context, jobID int, site string) error {
	if err := s.checkSite(site); err != nil {
		return err
	}
	if _, err := s.exec.Execute(ctx, fmt.Sprintf("oardel %d", jobID)); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}
	logr.FromContextOrDiscard(ctx).Info("Deleted job", "job", jobID, "site", s.site)
	return nil
}

// oarJob holds the oarstat fields the scheduler reads.
type oarJob struct {
	State                  string   `json:"state"`
	AssignedNetworkAddress []string `json:"assigned_network_address"`
}

func (s *Scheduler) status(ctx context.Context, jobID int) (*oarJob, error) {
	out, err := s.query(ctx, fmt.Sprintf("oarstat -fJ -j %d", jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to get status of job %d: %w", jobID, err)
	}
	return parseOarstat(out, jobID)
}

func parseOarstat(out string, jobID int) (*oarJob, error) {
	// Warnings on stderr may surround the document; only the first JSON
	// value is decoded.
	if i := strings.IndexByte(out, '{'); i > 0 {
		out = out[i:]
	}

	var jobs map[string]oarJob
	if err := json.NewDecoder(strings.NewReader(out)).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("failed to parse oarstat output: %w", err)
	}

	job, ok := jobs[strconv.Itoa(jobID)]
	if !ok {
		return nil, fmt.Errorf("job %d not found", jobID)
	}
	return &job, nil
}

// query runs a read-only command, retrying transient failures.
func (s *Scheduler) query(ctx context.Context, command string) (string, error) {
	var out string
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		out, err = s.exec.Execute(ctx, command)
		return err
	},
		retry.WithMaxRetries(s.maxRetries),
		retry.WithInitialDelay(s.retryDelay),
	)
	return out, err
}

func (s *Scheduler) checkSite(site string) error {
	if site != s.site {
		return fmt.Errorf("scheduler for site %s cannot manage jobs on site %q", s.site, site)
	}
	return nil
}
