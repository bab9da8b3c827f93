// Package runner provides the interchangeable test runners: Noop, which
// reports every run as skipped, and Sandbox, which runs the command in a
// throwaway container through an Engine (docker CLI by default).
package runner
