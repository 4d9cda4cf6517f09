// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes independent operations concurrently and joins
// their errors. [RunStaggered] additionally spaces task launches by a fixed
// delay and reports one result per task, which is how installation tasks
// are started against shared staging resources.
package async
