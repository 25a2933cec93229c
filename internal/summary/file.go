package summary

import (
	"fmt"
	"os"
)

// WriteFile replaces the contents of path with lines while holding an
// exclusive lock, so readers using the same lock never see a partial file.
func WriteFile(path string, lines []Line) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o664)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = unlockFile(f) }()

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	if err := Write(f, lines); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Sync()
}
