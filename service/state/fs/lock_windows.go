//go:build windows

package fs

// Windows has no flock; the in-process mutex is the only guard there.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
