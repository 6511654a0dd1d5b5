package agentsession

import (
	"os"
	"path/filepath"
)

// PruneOutputs removes on-disk full-output artifacts under dir older
// than fullOutputMaxAge, rate-gated to at most once per sweepInterval
// (spec §4.7 "Cleanup"). It is fire-and-forget: a denied reservation
// or a walk error is not fatal to the caller, since a missed sweep
// just runs next time.
func (m *Manager) PruneOutputs(dir string) (removed int, err error) {
	if !m.pruneLimiter.Allow() {
		return 0, nil
	}

	cutoff := m.now().Add(-m.fullOutputMaxAge)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, statErr := entry.Info()
		if statErr != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(filepath.Join(dir, entry.Name())); rmErr == nil {
				removed++
			}
		}
	}
	return removed, nil
}
