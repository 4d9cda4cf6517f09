package testing

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/platform/ssh"
)

// MockScheduler is a mock implementation of the provisioning.Scheduler interface.
type MockScheduler struct {
	mock.Mock
}

// Reserve submits a mock job.
func (m *MockScheduler) Reserve(ctx context.Context, req fleet.ReservationRequest) (int, error) {
	args := m.Called(ctx, req)
	return args.Int(0), args.Error(1)
}

// WaitStart waits for a mock job.
func (m *MockScheduler) WaitStart(ctx context.Context, jobID int) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// ListNodes returns the mock job nodes.
func (m *MockScheduler) ListNodes(ctx context.Context, jobID int, site string) ([]string, error) {
	args := m.Called(ctx, jobID, site)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// OverlayID returns the mock overlay id.
func (m *MockScheduler) OverlayID(ctx context.Context, jobID int, site string) (int, error) {
	args := m.Called(ctx, jobID, site)
	return args.Int(0), args.Error(1)
}

// EnableOverlay enables the mock overlay.
func (m *MockScheduler) EnableOverlay(ctx context.Context, jobID int, site string) error {
	args := m.Called(ctx, jobID, site)
	return args.Error(0)
}

// Release deletes the mock job.
func (m *MockScheduler) Release(ctx context.Context, jobID int, site string) error {
	args := m.Called(ctx, jobID, site)
	return args.Error(0)
}

// MockImager is a mock implementation of the provisioning.Imager interface.
type MockImager struct {
	mock.Mock
}

// Deploy images the mock hosts.
func (m *MockImager) Deploy(ctx context.Context, req fleet.ImagingRequest) ([]string, []string, error) {
	args := m.Called(ctx, req)
	var succeeded, failed []string
	if v := args.Get(0); v != nil {
		succeeded = v.([]string)
	}
	if v := args.Get(1); v != nil {
		failed = v.([]string)
	}
	return succeeded, failed, args.Error(2)
}

// MockRemoteRunner is a function-backed implementation of the
// provisioning.RemoteRunner interface. RunFunc receives one host at a time.
type MockRemoteRunner struct {
	RunFunc func(ctx context.Context, command, host string) ssh.Result
}

// Run calls RunFunc for every host, preserving host order.
func (m *MockRemoteRunner) Run(ctx context.Context, command string, hosts []string) []ssh.Result {
	out := make([]ssh.Result, len(hosts))
	for i, h := range hosts {
		if m.RunFunc == nil {
			out[i] = ssh.Result{Host: h}
			continue
		}
		out[i] = m.RunFunc(ctx, command, h)
		out[i].Host = h
	}
	return out
}

// MockCommandRunner is a mock implementation of the
// provisioning.CommandRunner interface.
type MockCommandRunner struct {
	mock.Mock
}

// Run runs the mock command.
func (m *MockCommandRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	called := m.Called(ctx, dir, env, name, args)
	return called.Error(0)
}

// MockDownloader is a mock implementation of the provisioning.Downloader
// interface. Data is written to w when no error is configured.
type MockDownloader struct {
	mock.Mock
}

// Download writes the configured data to w.
func (m *MockDownloader) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	args := m.Called(ctx, bucket, key)
	if err := args.Error(1); err != nil {
		return 0, err
	}
	n, err := w.Write(args.Get(0).([]byte))
	return int64(n), err
}
