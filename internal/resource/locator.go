// Package resource resolves the on-disk location of the bundled server
// script that the supervisor launches.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BundleName is the file name of the bundled server entry point.
const BundleName = "server.js"

// bundleDir is the directory holding bundled binaries, relative to the
// installation root.
var bundleDir = filepath.Join("resources", "binaries")

// ErrNotFound is returned when no candidate location holds the bundle.
var ErrNotFound = errors.New("server bundle not found")

// mockable in tests
var osExecutable = os.Executable

// Locate resolves the server bundle path. Candidates, in order: the explicit
// path (must exist if given), $SANDCASTLE_SERVER_BUNDLE, the bundle dir next
// to the running executable, and the bundle dir under the working directory.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("%w at %s", ErrNotFound, explicit)
	}

	var tried []string
	for _, p := range candidates() {
		if p == "" {
			continue
		}
		if fileExists(p) {
			return p, nil
		}
		tried = append(tried, p)
	}
	return "", fmt.Errorf("%w (tried %v)", ErrNotFound, tried)
}

func candidates() []string {
	paths := []string{os.Getenv("SANDCASTLE_SERVER_BUNDLE")}
	if exe, err := osExecutable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), bundleDir, BundleName))
	}
	paths = append(paths, filepath.Join(bundleDir, BundleName))
	return paths
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
