package orchestration

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// TestScenarios is the entry point for the Ginkgo run scenarios.
func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestration Scenario Suite")
}

// specContext returns a context whose logger writes to the Ginkgo writer, so
// run logs only show up for failing specs.
func specContext() context.Context {
	log := funcr.New(func(prefix, args string) {
		GinkgoWriter.Println(prefix, args)
	}, funcr.Options{Verbosity: 1})
	ctx, cancel := context.WithCancel(context.Background())
	DeferCleanup(cancel)
	return logr.NewContext(ctx, log)
}
