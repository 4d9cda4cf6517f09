package g5k

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackfleet/internal/fleet"
)

func fastScheduler(exec Executor) *Scheduler {
	return NewScheduler("nancy", exec,
		WithPollInterval(time.Millisecond),
		WithStartTimeout(time.Second),
		WithQueryRetries(2, time.Millisecond),
	)
}

func TestOarsubCommand(t *testing.T) {
	tests := []struct {
		name string
		req  fleet.ReservationRequest
		want string
	}{
		{
			name: "plain",
			req:  fleet.ReservationRequest{Nodes: 4, Walltime: "02:00:00"},
			want: `oarsub -t deploy -l /nodes=4,walltime=02:00:00 'sleep infinity'`,
		},
		{
			name: "cluster switch and overlay",
			req: fleet.ReservationRequest{
				Name: "stackfleet-fleet", Cluster: "griffon", Switch: "sgriffon1",
				Nodes: 6, Walltime: "01:30:00", Overlay: true,
			},
			want: `oarsub -t deploy -n stackfleet-fleet -l '{type='\''kavlan'\''}/vlan=1+{cluster='\''griffon'\'' and switch='\''sgriffon1'\''}/nodes=6,walltime=01:30:00' 'sleep infinity'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OarsubCommand(tt.req))
		})
	}
}

func TestScheduler_Reserve(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(_ context.Context, command string) (string, error) {
		return "[ADMISSION RULE] Modify resource description with type constraints\nOAR_JOB_ID=1834752\n", nil
	}}
	s := fastScheduler(exec)

	jobID, err := s.Reserve(context.Background(), fleet.ReservationRequest{Site: "nancy", Nodes: 2, Walltime: "02:00:00"})
	require.NoError(t, err)
	assert.Equal(t, 1834752, jobID)
	assert.Len(t, exec.callsWithPrefix("oarsub"), 1)
}

func TestScheduler_ReserveErrors(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return "There are not enough resources for your request\n", nil
	}}
	s := fastScheduler(exec)

	_, err := s.Reserve(context.Background(), fleet.ReservationRequest{Site: "nancy", Nodes: 2, Walltime: "02:00:00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not report a job id")

	_, err = s.Reserve(context.Background(), fleet.ReservationRequest{Site: "lyon", Nodes: 2})
	assert.Error(t, err, "site mismatch")

	_, err = s.Reserve(context.Background(), fleet.ReservationRequest{Site: "nancy"})
	assert.Error(t, err, "zero nodes")

	failing := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	}}
	_, err = fastScheduler(failing).Reserve(context.Background(), fleet.ReservationRequest{Site: "nancy", Nodes: 1, Walltime: "01:00:00"})
	require.Error(t, err)
	assert.Len(t, failing.Calls, 1, "submission must not be retried")
}

func oarstatJSON(jobID int, state string, nodes ...string) string {
	quoted := make([]string, len(nodes))
	for i, n := range nodes {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf(`{"%d": {"state": %q, "assigned_network_address": [%s], "name": "stackfleet-fleet"}}`,
		jobID, state, strings.Join(quoted, ","))
}

func TestScheduler_WaitStart(t *testing.T) {
	var polls atomic.Int32
	exec := &fakeExecutor{ExecuteFunc: func(_ context.Context, command string) (string, error) {
		if polls.Add(1) < 3 {
			return oarstatJSON(42, "Waiting"), nil
		}
		return oarstatJSON(42, "Running", "griffon-1.nancy.grid5000.fr"), nil
	}}

	require.NoError(t, fastScheduler(exec).WaitStart(context.Background(), 42))
	assert.Equal(t, int32(3), polls.Load())
}

func TestScheduler_WaitStartJobEnded(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return oarstatJSON(42, "Error"), nil
	}}

	err := fastScheduler(exec).WaitStart(context.Background(), 42)

	var ended *JobEndedError
	require.ErrorAs(t, err, &ended)
	assert.Equal(t, "Error", ended.State)
}

func TestScheduler_WaitStartTimeout(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return oarstatJSON(42, "Waiting"), nil
	}}
	s := NewScheduler("nancy", exec, WithPollInterval(5*time.Millisecond), WithStartTimeout(30*time.Millisecond))

	err := s.WaitStart(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_ListNodes(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return "Warning: deprecated option\n" + oarstatJSON(7, "Running",
			"griffon-9.nancy.grid5000.fr", "griffon-10.nancy.grid5000.fr", "griffon-9.nancy.grid5000.fr"), nil
	}}

	nodes, err := fastScheduler(exec).ListNodes(context.Background(), 7, "nancy")
	require.NoError(t, err)
	assert.Equal(t, []string{"griffon-10.nancy.grid5000.fr", "griffon-9.nancy.grid5000.fr"}, nodes)
	assert.Equal(t, []string{"oarstat -fJ -j 7"}, exec.Calls)
}

func TestScheduler_ListNodesIgnoresTrailingWarnings(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return oarstatJSON(42, "Running", "graphene-1.nancy.grid5000.fr") + "\nWarning: something on stderr\n", nil
	}}

	s := fastScheduler(exec)
	nodes, err := s.ListNodes(context.Background(), 42, "nancy")
	require.NoError(t, err)
	assert.Equal(t, []string{"graphene-1.nancy.grid5000.fr"}, nodes)

	require.NoError(t, s.WaitStart(context.Background(), 42))
}

func TestScheduler_ListNodesErrors(t *testing.T) {
	empty := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return oarstatJSON(7, "Running"), nil
	}}
	_, err := fastScheduler(empty).ListNodes(context.Background(), 7, "nancy")
	assert.ErrorContains(t, err, "no assigned nodes")

	other := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return oarstatJSON(8, "Running", "a"), nil
	}}
	_, err = fastScheduler(other).ListNodes(context.Background(), 7, "nancy")
	assert.ErrorContains(t, err, "job 7 not found")

	garbage := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return "not json", nil
	}}
	_, err = fastScheduler(garbage).ListNodes(context.Background(), 7, "nancy")
	assert.ErrorContains(t, err, "failed to parse oarstat output")
}

func TestScheduler_QueryRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("ssh: handshake failed")
		}
		return "3\n", nil
	}}

	id, err := fastScheduler(exec).OverlayID(context.Background(), 7, "nancy")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_OverlayIDInvalid(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) {
		return "no vlan reserved\n", nil
	}}

	_, err := fastScheduler(exec).OverlayID(context.Background(), 7, "nancy")
	assert.ErrorContains(t, err, "has no overlay network")
}

func TestScheduler_EnableOverlayAndRelease(t *testing.T) {
	exec := &fakeExecutor{ExecuteFunc: func(context.Context, string) (string, error) { return "", nil }}
	s := fastScheduler(exec)

	require.NoError(t, s.EnableOverlay(context.Background(), 7, "nancy"))
	require.NoError(t, s.Release(context.Background(), 7, "nancy"))
	assert.Equal(t, []string{"kavlan -e -j 7", "oardel 7"}, exec.Calls)

	assert.Error(t, s.Release(context.Background(), 7, "lyon"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "debian11-big", shellQuote("debian11-big"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, `'a b'`, shellQuote("a b"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
