package archiver

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// ShouldArchiveSpec decides whether specPath is due for archival. The
// checks run in order: archival enabled, tasks complete, delay elapsed
// since the last task edit, safety. The first failing check gives the
// reason. Only a configuration failure is returned as an error.
func (e *Engine) ShouldArchiveSpec(specPath string) (types.ArchiveDecision, error) {
	cfg, err := e.config.Load()
	if err != nil {
		return types.ArchiveDecision{}, err
	}
	if !cfg.Enabled {
		return types.ArchiveDecision{Reason: "automatic archival is disabled"}, nil
	}

	status, err := e.detector.CheckCompletion(specPath)
	if err != nil {
		return types.ArchiveDecision{Reason: fmt.Sprintf("cannot read task status: %v", err)}, nil
	}
	if !status.IsComplete {
		return types.ArchiveDecision{
			Reason: fmt.Sprintf("not complete: %d of %d tasks done", status.CompletedTasks, status.TotalTasks),
		}, nil
	}

	delay := minutes(cfg.DelayMinutes)
	if elapsed := e.now().Sub(status.LastModified); elapsed < delay {
		remaining := int(math.Ceil((delay - elapsed).Minutes()))
		return types.ArchiveDecision{
			Reason: fmt.Sprintf("archival delay not elapsed: %d minute(s) remaining", remaining),
		}, nil
	}

	if check := e.ValidateArchivalSafety(specPath); !check.CanProceed {
		return types.ArchiveDecision{Reason: "unsafe to archive: " + strings.Join(check.Issues, "; ")}, nil
	}
	return types.ArchiveDecision{ShouldArchive: true, Reason: "complete and ready for archival"}, nil
}

// AutoArchiveCompletedSpecs archives every spec that is ready and due.
// Specs are processed sequentially and a failure on one spec does not stop
// the others. A cancelled ctx stops the run after the current spec; the
// partial report is returned with ctx's error.
func (e *Engine) AutoArchiveCompletedSpecs(ctx context.Context) (types.BatchReport, error) {
	report := types.BatchReport{Results: []types.ArchivalResult{}, Skipped: []types.SkippedSpec{}}

	cfg, err := e.config.Load()
	if err != nil {
		return report, err
	}
	if !cfg.Enabled {
		report.Disabled = true
		e.notifier.Summary(report)
		return report, nil
	}

	ready, err := e.scanner.ReadyForArchival()
	if err != nil {
		return report, err
	}
	report.Candidates = len(ready)

	for _, spec := range ready {
		if err := ctx.Err(); err != nil {
			e.notifier.Summary(report)
			return report, err
		}
		decision, err := e.ShouldArchiveSpec(spec)
		if err != nil {
			return report, err
		}
		if !decision.ShouldArchive {
			skipped := types.SkippedSpec{Path: spec, Reason: decision.Reason}
			report.Skipped = append(report.Skipped, skipped)
			e.notifier.Skipped(skipped)
			e.log.Debug("spec skipped", "spec", filepath.Base(spec), "reason", decision.Reason)
			continue
		}
		report.Results = append(report.Results, e.ArchiveSpec(ctx, spec))
	}

	e.log.Info("auto-archive finished",
		"candidates", report.Candidates,
		"archived", report.Succeeded(),
		"failed", report.Failed(),
		"skipped", len(report.Skipped))
	e.notifier.Summary(report)
	return report, nil
}
