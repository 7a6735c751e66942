package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/archiver"
	"github.com/mesh-intelligence/specarchive/internal/completion"
	"github.com/mesh-intelligence/specarchive/internal/config"
	"github.com/mesh-intelligence/specarchive/internal/index"
	"github.com/mesh-intelligence/specarchive/internal/notify"
	"github.com/mesh-intelligence/specarchive/internal/paths"
	"github.com/mesh-intelligence/specarchive/internal/scanner"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// app holds the components one command invocation works with.
type app struct {
	root     string
	specsDir string
	settings settings
	fs       afero.Fs
	log      *slog.Logger
	config   *config.Manager

	// Set by open.
	archiveRoot string
	detector    *completion.Detector
	scanner     *scanner.Scanner
	index       *index.Manager
	engine      *archiver.Engine
	notifier    *notify.Notifier
}

// newApp resolves locations and the configuration manager. It does not
// read the archival config, so config commands work on a broken file.
func newApp(cmd *cobra.Command) (*app, error) {
	root, err := paths.ResolveProjectRoot(flags.root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	s, err := loadSettings(root)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	fs := afero.NewOsFs()
	return &app{
		root:     root,
		specsDir: paths.ResolveSpecsDir(root, flags.specsDir, s.SpecsDir),
		settings: s,
		fs:       fs,
		log:      log,
		config: config.NewManager(fs, paths.Under(root, s.ConfigFile),
			config.WithBackupDir(paths.Under(root, s.BackupDir)),
			config.WithLogger(log)),
	}, nil
}

// open loads the archival config and wires the archival components.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := a.config.Load()
	if err != nil {
		return err
	}
	a.archiveRoot = paths.Under(a.root, cfg.ArchiveLocation)

	store, err := index.Open(a.settings.IndexBackend, a.fs, a.archiveRoot)
	if err != nil {
		return err
	}
	a.index = index.NewManager(store, a.fs, a.archiveRoot, index.WithLogger(a.log))
	a.detector = completion.NewDetector(a.fs)
	a.scanner = scanner.New(a.fs, a.detector, a.specsDir,
		scanner.WithArchiveRoot(a.archiveRoot),
		scanner.WithLogger(a.log))
	a.notifier = notify.New(cmd.ErrOrStderr(), cfg.NotificationLevel)
	a.engine = archiver.New(archiver.Options{
		Fs:       a.fs,
		Scanner:  a.scanner,
		Detector: a.detector,
		Config:   a.config,
		Index:    a.index,
		Notifier: a.notifier,
		Logger:   a.log,
	})
	return nil
}

func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.log.Warn("closing index", "error", err)
		}
	}
}

// openApp is newApp followed by open. The caller must defer close.
func openApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.open(cmd); err != nil {
		return nil, err
	}
	return a, nil
}

// specPath resolves a spec argument. A bare name is looked up in the specs
// directory; anything containing a separator is taken as a path.
func (a *app) specPath(arg string) (string, error) {
	if !strings.ContainsAny(arg, `/\`) {
		return filepath.Join(a.specsDir, arg), nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", types.NewError(types.ErrNotFound, "resolve spec", abs, err)
	}
	return abs, nil
}

// rel shortens path for display relative to the project root.
func (a *app) rel(path string) string {
	if r, err := filepath.Rel(a.root, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}
