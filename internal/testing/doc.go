// Package testing provides test utilities, builders, and fixtures for unit and integration tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ConfigBuilder: Fluent builder for creating test configurations
//   - FleetFixture: Deterministic host addresses for a test site
//   - MockScheduler, MockImager, MockRemoteRunner, MockCommandRunner:
//     shared testify mocks for the provisioning collaborators
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithSite("nancy").
//	    WithGroups(3, 2).
//	    Build()
//
//	hosts := testing.NewFleetFixture("nancy").Physical(6)
package testing
