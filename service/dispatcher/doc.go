// Package dispatcher executes approved actions. Commits go through git, test
// runs through the configured runner.Runner (followed by a plan update) and
// edit instructions are queued in the state store. Each dispatch produces one
// activity entry carrying the full ExecutionResult.
package dispatcher
