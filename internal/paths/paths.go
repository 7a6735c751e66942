// Package paths resolves the project root and the locations derived from
// it.
package paths

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Project-relative locations.
const (
	KiroDirName     = ".kiro"
	DefaultSpecsDir = ".kiro/specs"
	SettingsFile    = ".kiro/specarchive.yaml"
)

// EnvRoot overrides the project root.
const EnvRoot = "SPECARCHIVE_ROOT"

// workDir holds the working-directory lookup so tests can override it.
var workDir = os.Getwd

// ResolveProjectRoot returns the project root following the precedence
// chain: flag > SPECARCHIVE_ROOT env > discovered root.
//
// Discovery walks up from the working directory to the nearest directory
// holding a .kiro directory. When none is found the working directory
// itself is the root.
func ResolveProjectRoot(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := workDir()
	if err != nil {
		return "", err
	}
	if root, ok := findKiroRoot(cwd); ok {
		return root, nil
	}
	return cwd, nil
}

func findKiroRoot(start string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		info, err := os.Stat(filepath.Join(dir, KiroDirName))
		if err == nil && info.IsDir() {
			return dir, true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ResolveSpecsDir returns the specs root following the precedence chain:
// flag > settings value > DefaultSpecsDir. Relative values are taken
// relative to root.
func ResolveSpecsDir(root, flag, settingsValue string) string {
	switch {
	case flag != "":
		return Under(root, flag)
	case settingsValue != "":
		return Under(root, settingsValue)
	default:
		return Under(root, DefaultSpecsDir)
	}
}

// Under joins a relative path onto root and cleans absolute ones.
func Under(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
