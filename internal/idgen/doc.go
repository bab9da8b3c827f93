// Package idgen issues the identifiers used for requests, activity entries,
// instructions and sandbox containers. NewFunc can be replaced in tests.
package idgen
