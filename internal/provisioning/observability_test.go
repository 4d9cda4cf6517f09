package provisioning

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu    sync.Mutex
	lines []string
}

func (c *captured) sink(prefix, args string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, args)
}

func TestLogObserver_Event(t *testing.T) {
	t.Parallel()
	out := &captured{}
	observer := NewLogObserver(funcr.New(out.sink, funcr.Options{Verbosity: 1}))

	LogPhaseStart(observer, PhaseDeploy)
	LogPhaseComplete(observer, PhaseDeploy, 1500*time.Millisecond)
	LogPhaseFailed(observer, PhaseInstall, errors.New("payload missing"))
	LogGroupInstalled(observer, 2, "g2-abc", nil)

	require.Len(t, out.lines, 4)
	assert.Contains(t, out.lines[0], `"event"="phase.started"`)
	assert.Contains(t, out.lines[0], `"phase"="deploy"`)
	assert.Contains(t, out.lines[1], "Phase completed in 1.5s")
	assert.Contains(t, out.lines[2], `"error"="payload missing"`)
	assert.Contains(t, out.lines[3], `"group"=2`)
	assert.Contains(t, out.lines[3], `"scratch"="g2-abc"`)
}

func TestLogObserver_PhaseEventsAreVerbose(t *testing.T) {
	t.Parallel()
	out := &captured{}
	observer := NewLogObserver(funcr.New(out.sink, funcr.Options{}))

	LogPhaseStart(observer, PhaseDeploy)
	LogWarning(observer, PhaseDeploy, "hosts failed imaging", map[string]string{"failed": "a"})

	require.Len(t, out.lines, 1)
	assert.Contains(t, out.lines[0], "hosts failed imaging")
}

func TestMultiObserver(t *testing.T) {
	t.Parallel()
	a, b := &RecordingObserver{}, &RecordingObserver{}
	multi := MultiObserver{a, nil, b}

	LogGroupVerified(multi, 1, []string{"ctrl-1"}, nil)

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, EventGroupVerified, a.Events()[0].Type)
	assert.Equal(t, "[ctrl-1]", b.Events()[0].Fields["controllers"])
}

func TestRecordingObserver_Concurrent(t *testing.T) {
	t.Parallel()
	observer := &RecordingObserver{}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			LogGroupInstalled(observer, i, "scratch", nil)
		}()
	}
	wg.Wait()

	assert.Len(t, observer.Events(), 20)
}
