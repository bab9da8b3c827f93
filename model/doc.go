// Package model contains the value types shared by every layer of the
// governance pipeline: agent profiles, proposed actions with their typed
// payloads, policy decisions, permission requests, activity entries and
// execution results.
//
// Values are treated as immutable once constructed.  Persisted collections
// live in the state store; the types here only describe their shape and the
// JSON layout used on disk.
package model
