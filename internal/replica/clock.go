package replica

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func ensureDir(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(file), err)
	}
	return nil
}
