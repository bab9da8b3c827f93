package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier. Tests may stub it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }

// Short returns the first n hex characters of a fresh identifier, for names
// that only need to be unique among concurrently running resources.
func Short(n int) string {
	id := strings.ReplaceAll(New(), "-", "")
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}
