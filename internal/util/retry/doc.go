// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max
// attempts, initial delay, and maximum delay. It is used for SSH dials to
// freshly imaged nodes and for scheduler commands on the site frontend,
// both of which fail transiently while the testbed settles.
package retry
