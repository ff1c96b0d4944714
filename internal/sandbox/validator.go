package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// Verify checks that the base directory can be created and written to.
// Run it once at startup so misconfigured sandbox roots fail loudly
// instead of erroring on every mutant.
func (m *Manager) Verify() error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("sandbox base dir not creatable: %w", err)
	}

	probe := filepath.Join(m.baseDir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("sandbox base dir not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("sandbox base dir not cleanable: %w", err)
	}

	return nil
}
