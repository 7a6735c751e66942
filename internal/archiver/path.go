package archiver

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// GenerateArchivePath returns a fresh archive directory for specName:
// <root>/<YYYY-MM-DD>_<name>, then with _<HH-MM-SS> appended on collision,
// then _<HH-MM-SS>_<n> for n = 1, 2, .... Paths already handed out by this
// engine count as collisions, so repeated calls never return the same
// path.
func (e *Engine) GenerateArchivePath(specName string) (string, error) {
	return e.nextArchivePath(specName, true)
}

func (e *Engine) nextArchivePath(specName string, reserve bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	base := filepath.Join(e.ArchiveRoot(), now.Format("2006-01-02")+"_"+specName)
	timed := base + "_" + now.Format("15-04-05")

	candidate := func(n int) string {
		switch n {
		case 0:
			return base
		case 1:
			return timed
		default:
			return fmt.Sprintf("%s_%d", timed, n-1)
		}
	}

	for n := 0; ; n++ {
		path := candidate(n)
		if e.issued[path] {
			continue
		}
		taken, err := e.occupied(path)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		if reserve {
			e.issued[path] = true
		}
		return path, nil
	}
}

func (e *Engine) occupied(path string) (bool, error) {
	return afero.Exists(e.fs, path)
}

// release returns a reserved path to the pool after a failed archival, so
// a retry on the same day can reuse it once it is free on disk.
func (e *Engine) release(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.issued, path)
}
