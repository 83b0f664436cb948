// Package debris builds the per-sync local quarantine path for nodes
// removed as a side-effect of a sync decision: a folder named
// for the day, with an hour.min.sec.seq suffix appended only on
// collision.
package debris

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxAttempts bounds the collision-avoidance retry to roughly 100
// suffix attempts before giving up.
const maxAttempts = 100

// DirName returns ".debris" under root, the container for every dated
// debris folder.
func DirName(root string) string {
	return filepath.Join(root, ".debris")
}

// Path returns a debris folder under root named for when, appended with
// a collision-avoiding suffix if a folder for that day already exists.
// exists is injected so callers (and tests) don't
// need a real filesystem.
func Path(root string, when time.Time, exists func(string) bool) (string, error) {
	base := filepath.Join(DirName(root), when.Format("2006-01-02"))
	if !exists(base) {
		return base, nil
	}

	for i := 0; i < maxAttempts; i++ {
		candidate := fmt.Sprintf("%s %02d.%02d.%02d.%02d", base, when.Hour(), when.Minute(), when.Second(), i)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("debris: no free path under %s after %d attempts", base, maxAttempts)
}

// PathOnDisk is the Path variant backed by the real filesystem, used
// outside of tests.
func PathOnDisk(root string, when time.Time) (string, error) {
	return Path(root, when, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
}

// Ensure creates the resolved debris path (and its .debris parent) on
// disk and returns it.
func Ensure(root string, when time.Time) (string, error) {
	p, err := PathOnDisk(root, when)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", fmt.Errorf("debris: creating %s: %w", p, err)
	}
	return p, nil
}
