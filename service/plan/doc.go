// Package plan maintains the per-workspace plan document: test outcomes are
// appended as timestamped "Requirements Update" sections and every append is
// summarised as a unified diff with line statistics.
package plan
