package fsutil

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ProbeWritable checks that files can be created in dir by writing and
// removing a throwaway file. When dir does not exist yet, the nearest
// existing ancestor is probed instead, so the probe never creates
// directories.
func ProbeWritable(fs afero.Fs, dir string) error {
	target := filepath.Clean(dir)
	for {
		info, err := fs.Stat(target)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", target)
			}
			break
		}
		parent := filepath.Dir(target)
		if parent == target {
			return fmt.Errorf("no existing ancestor of %s: %w", dir, err)
		}
		target = parent
	}

	probe := filepath.Join(target, ".write-probe-"+uuid.NewString())
	if err := afero.WriteFile(fs, probe, []byte("probe"), 0o600); err != nil {
		return fmt.Errorf("writing probe in %s: %w", target, err)
	}
	if err := fs.Remove(probe); err != nil {
		return fmt.Errorf("removing probe %s: %w", probe, err)
	}
	return nil
}
