// Package metrics records run metrics in a dedicated Prometheus registry.
//
// A run is a short-lived batch job, so the registry is pushed to a
// Pushgateway once the run ends rather than scraped. A nil *Recorder is
// valid and records nothing.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "stackfleet"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	phaseDuration    *prometheus.HistogramVec
	hostsDeployed    prometheus.Gauge
	hostsFailed      prometheus.Gauge
	imagingDuration  prometheus.Histogram
	groupsTotal      prometheus.Gauge
	installsTotal    *prometheus.CounterVec
	installDuration  prometheus.Histogram
	verifiesTotal    *prometheus.CounterVec
	controllersFound *prometheus.GaugeVec
	probeFailures    *prometheus.GaugeVec
	runState         *prometheus.GaugeVec
}

// New creates a recorder with all metrics registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "phase_duration_seconds",
				Help:      "Duration of each run phase in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"phase", "result"},
		),
		hostsDeployed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "hosts_succeeded",
			Help:      "Number of hosts imaged or checked successfully",
		}),
		hostsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "hosts_failed",
			Help:      "Number of hosts that failed imaging or checking",
		}),
		imagingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "imaging_duration_seconds",
			Help:      "Duration of the imaging call including retries",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 8), // 30s to ~64min
		}),
		groupsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "partition",
			Name:      "groups",
			Help:      "Number of groups the fleet was split into",
		}),
		installsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "install",
				Name:      "groups_total",
				Help:      "Group installations by result",
			},
			[]string{"result"},
		),
		installDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "install",
			Name:      "duration_seconds",
			Help:      "Duration of one group installation",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85min
		}),
		verifiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "groups_total",
				Help:      "Group verifications by result",
			},
			[]string{"result"},
		),
		controllersFound: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "controllers",
				Help:      "Distinct controllers discovered per group",
			},
			[]string{"group"},
		),
		probeFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "failed_hosts",
				Help:      "Hosts whose probe failed per group",
			},
			[]string{"group"},
		),
		runState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "state",
				Help:      "Final state of the run (1 for the state reached)",
			},
			[]string{"state"},
		),
	}

	r.registry.MustRegister(
		r.phaseDuration,
		r.hostsDeployed,
		r.hostsFailed,
		r.imagingDuration,
		r.groupsTotal,
		r.installsTotal,
		r.installDuration,
		r.verifiesTotal,
		r.controllersFound,
		r.probeFailures,
		r.runState,
	)
	return r
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordPhase records the duration of a finished phase.
func (r *Recorder) RecordPhase(phase string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase, result(err == nil)).Observe(duration.Seconds())
}

// RecordDeployment records the imaging outcome.
func (r *Recorder) RecordDeployment(succeeded, failed int, duration time.Duration) {
	if r == nil {
		return
	}
	r.hostsDeployed.Set(float64(succeeded))
	r.hostsFailed.Set(float64(failed))
	r.imagingDuration.Observe(duration.Seconds())
}

// RecordGroups records the number of groups formed.
func (r *Recorder) RecordGroups(n int) {
	if r == nil {
		return
	}
	r.groupsTotal.Set(float64(n))
}

// RecordInstall records one group installation.
func (r *Recorder) RecordInstall(ok bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.installsTotal.WithLabelValues(result(ok)).Inc()
	r.installDuration.Observe(duration.Seconds())
}

// RecordVerification records one group verification.
func (r *Recorder) RecordVerification(ordinal int, ok bool, controllers, failedHosts int) {
	if r == nil {
		return
	}
	group := strconv.Itoa(ordinal)
	r.verifiesTotal.WithLabelValues(result(ok)).Inc()
	r.controllersFound.WithLabelValues(group).Set(float64(controllers))
	r.probeFailures.WithLabelValues(group).Set(float64(failedHosts))
}

// RecordRunState records the final state of the run.
func (r *Recorder) RecordRunState(state string) {
	if r == nil {
		return
	}
	r.runState.Reset()
	r.runState.WithLabelValues(state).Set(1)
}

// Push sends every metric to the Pushgateway at url, replacing the metrics
// previously pushed under the same job and grouping.
func (r *Recorder) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if r == nil {
		return nil
	}

	pusher := push.New(url, job).Gatherer(r.registry)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
