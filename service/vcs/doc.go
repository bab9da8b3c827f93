// Package vcs wraps the git command line for the commit runner.
package vcs
