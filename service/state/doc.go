// Package state persists the runtime document: the activity trail, the
// permission requests and the queued instructions.
//
// Service exposes the domain operations; a Backend provides the atomic
// read-modify-write primitive.  Backends live in sub-packages: fs (a JSON file
// written by temp-file-and-rename under a file lock), sqlite (a single-row
// table updated in a transaction) and memory (tests and ephemeral runs).
package state
