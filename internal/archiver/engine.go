// Package archiver moves completed specs into the archive. Each archival
// runs a copy, verify, index, delete pipeline in which the original is
// removed only after its archived copy has been verified and indexed; any
// failure before that point rolls the partial archive back.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mesh-intelligence/specarchive/internal/completion"
	"github.com/mesh-intelligence/specarchive/internal/config"
	"github.com/mesh-intelligence/specarchive/internal/fsutil"
	"github.com/mesh-intelligence/specarchive/internal/index"
	"github.com/mesh-intelligence/specarchive/internal/notify"
	"github.com/mesh-intelligence/specarchive/internal/scanner"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// RecentEditWindow is how recently the task document may have changed
// before a spec is considered to be under active edit.
const RecentEditWindow = 5 * time.Minute

// Options wires an Engine to its collaborators. Fs, Scanner, Detector,
// Config, and Index are required.
type Options struct {
	Fs       afero.Fs
	Scanner  *scanner.Scanner
	Detector *completion.Detector
	Config   *config.Manager
	Index    *index.Manager

	Notifier *notify.Notifier // nil disables notifications
	Now      func() time.Time // defaults to time.Now
	Logger   *slog.Logger     // defaults to slog.Default()
}

// Engine archives specs. Specs are processed one at a time.
type Engine struct {
	fs       afero.Fs
	scanner  *scanner.Scanner
	detector *completion.Detector
	config   *config.Manager
	index    *index.Manager
	notifier *notify.Notifier
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	issued map[string]bool
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		fs:       opts.Fs,
		scanner:  opts.Scanner,
		detector: opts.Detector,
		config:   opts.Config,
		index:    opts.Index,
		notifier: opts.Notifier,
		now:      opts.Now,
		log:      opts.Logger,
		issued:   make(map[string]bool),
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// ArchiveRoot returns the directory archives are written to.
func (e *Engine) ArchiveRoot() string { return e.index.ArchiveRoot() }

// ArchiveSpec archives one spec. It never panics on filesystem failures;
// the outcome, including any error, is described by the returned result.
// When Success is false the original spec directory is untouched.
func (e *Engine) ArchiveSpec(ctx context.Context, specPath string) types.ArchivalResult {
	specPath = filepath.Clean(specPath)
	res := types.ArchivalResult{
		State:        types.StatePending,
		SpecName:     filepath.Base(specPath),
		OriginalPath: specPath,
		Timestamp:    e.now(),
	}
	log := e.log.With("spec", res.SpecName)

	fail := func(err error) types.ArchivalResult {
		res.Success = false
		res.State = types.StateFailed
		res.Error = err.Error()
		res.ErrorCode = types.CodeOf(err)
		log.Debug("archival failed", "error", err, "code", res.ErrorCode)
		e.notifier.Result(res)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(types.NewError(types.ErrCopyFailed, "archive", specPath, err))
	}

	// Step 1: nothing is mutated until the safety check passes.
	check := e.ValidateArchivalSafety(specPath)
	if !check.CanProceed {
		kind := kindOf(check.Code)
		return fail(types.NewError(kind, "safety check", specPath, errors.New(strings.Join(check.Issues, "; "))))
	}
	status, err := e.detector.CheckCompletion(specPath)
	if err != nil {
		return fail(err)
	}

	res.State = types.StateInProgress
	log.Debug("archival started")

	// Step 2.
	target, err := e.GenerateArchivePath(res.SpecName)
	if err != nil {
		return fail(types.NewError(types.ErrCopyFailed, "generate archive path", specPath, err))
	}
	res.ArchivePath = target

	meta, created, err := e.build(ctx, specPath, target, status)
	if err != nil {
		if created {
			res.RolledBack = e.rollback(target, log)
		}
		e.release(target)
		return fail(err)
	}

	// Step 6.
	if err := ctx.Err(); err != nil {
		res.RolledBack = e.rollback(target, log)
		e.release(target)
		return fail(types.NewError(types.ErrCopyFailed, "archive", specPath, err))
	}
	if err := e.index.AddMetadata(meta); err != nil {
		res.RolledBack = e.rollback(target, log)
		e.release(target)
		return fail(types.NewError(types.ErrCopyFailed, "update index", target, err))
	}

	// Step 7: the archive is verified and indexed, so the original can go.
	res.Success = true
	res.State = types.StateCompleted
	if err := e.fs.RemoveAll(specPath); err != nil {
		cleanupErr := types.NewError(types.ErrCleanupFailed, "remove original", specPath, err)
		res.Error = cleanupErr.Error()
		res.ErrorCode = types.CodeCleanupFailed
		log.Warn("archived but could not remove original", "archive", target, "error", err)
	} else {
		log.Info("spec archived", "archive", target)
	}
	e.notifier.Result(res)
	return res
}

// build runs the copy, metadata, and verification steps into target. It
// reports whether target was created, so that a destination that appeared
// concurrently is never rolled back.
func (e *Engine) build(ctx context.Context, specPath, target string, status types.CompletionStatus) (meta types.ArchiveMetadata, created bool, err error) {
	// Step 3.
	stats, err := fsutil.CopyTree(ctx, e.fs, specPath, target)
	created = stats.Directories > 0
	if err != nil {
		return meta, created, types.NewError(types.ErrCopyFailed, "copy", specPath, err)
	}
	if len(stats.Skipped) > 0 {
		err := fmt.Errorf("cannot copy %s", strings.Join(stats.Skipped, ", "))
		return meta, created, types.NewError(types.ErrCopyFailed, "copy", specPath, err)
	}

	// Step 4.
	if err := ctx.Err(); err != nil {
		return meta, created, types.NewError(types.ErrCopyFailed, "archive", specPath, err)
	}
	meta = types.ArchiveMetadata{
		ArchiveID:      newArchiveID(),
		SpecName:       filepath.Base(specPath),
		OriginalPath:   specPath,
		ArchivePath:    target,
		CompletionDate: status.LastModified,
		ArchivalDate:   e.now(),
		TotalTasks:     status.TotalTasks,
		CompletedTasks: status.CompletedTasks,
		FileCount:      stats.Files + stats.Links,
		SchemaVersion:  types.MetadataSchemaVersion,
	}
	if err := fsutil.WriteJSONAtomic(e.fs, filepath.Join(target, types.MetadataFileName), meta); err != nil {
		return meta, created, types.NewError(types.ErrCopyFailed, "write metadata", target, err)
	}

	// Step 5.
	if err := ctx.Err(); err != nil {
		return meta, created, types.NewError(types.ErrCopyFailed, "archive", specPath, err)
	}
	if err := e.verify(specPath, target); err != nil {
		return meta, created, types.NewError(types.ErrCopyFailed, "verify archive", target, err)
	}
	return meta, created, nil
}

// verify compares file and link counts between source and archive, ignoring
// the metadata file, and checks that every required document arrived.
func (e *Engine) verify(specPath, target string) error {
	want, err := fsutil.CountFiles(e.fs, specPath)
	if err != nil {
		return err
	}
	got, err := fsutil.CountFiles(e.fs, target, types.MetadataFileName)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("file count mismatch: source has %d, archive has %d", want, got)
	}
	for _, name := range types.RequiredFiles {
		info, err := e.fs.Stat(filepath.Join(target, name))
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%s missing from archive", name)
		}
	}
	return nil
}

// rollback removes whatever was created at target. Failures are logged and
// not escalated. It reports whether target is gone afterwards.
func (e *Engine) rollback(target string, log *slog.Logger) bool {
	exists, err := afero.Exists(e.fs, target)
	if err == nil && !exists {
		return false
	}
	if err := e.fs.RemoveAll(target); err != nil {
		log.Warn("rollback failed; partial archive left behind", "archive", target, "error", err)
		return false
	}
	log.Debug("rolled back partial archive", "archive", target)
	return true
}

func newArchiveID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// kindOf maps a safety check code back to its error kind.
func kindOf(code types.ErrorCode) error {
	switch code {
	case types.CodeNotFound:
		return types.ErrNotFound
	case types.CodePermissionDenied:
		return types.ErrPermissionDenied
	case types.CodeConcurrentAccess:
		return types.ErrConcurrentAccess
	case types.CodeReadFailure:
		return types.ErrReadFailure
	default:
		return types.ErrValidationFailed
	}
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
