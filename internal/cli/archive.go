package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/notify"
	"github.com/mesh-intelligence/specarchive/internal/watch"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// resultExitCode maps a failed archival to an exit code.
func resultExitCode(code types.ErrorCode) int {
	switch code {
	case types.CodeValidationFailed, types.CodeNotFound, types.CodeConfig, types.CodeConcurrentAccess:
		return exitUserError
	}
	return exitSysError
}

type resultView types.ArchivalResult

func (r resultView) renderText(w io.Writer) error {
	switch {
	case !r.Success:
		fmt.Fprintf(w, "%s %s: %s (%s)\n", notify.StyleError.Render("✗ failed"), r.SpecName, r.Error, r.ErrorCode)
		if r.RolledBack {
			fmt.Fprintln(w, notify.StyleMuted.Render("  partial archive removed"))
		}
	case r.ErrorCode == types.CodeCleanupFailed:
		fmt.Fprintf(w, "! archived %s to %s but the original was not removed: %s\n", r.SpecName, r.ArchivePath, r.Error)
	default:
		fmt.Fprintf(w, "%s %s to %s\n", notify.StyleSuccess.Render("✓ archived"), r.SpecName, r.ArchivePath)
	}
	return nil
}

type checkView struct {
	Spec     string                `json:"spec" yaml:"spec"`
	Decision types.ArchiveDecision `json:"decision" yaml:"decision"`
	Safety   types.SafetyCheck     `json:"safety" yaml:"safety"`
}

func (v checkView) renderText(w io.Writer) error {
	safe := notify.StyleSuccess.Render("safe to archive")
	if !v.Safety.CanProceed {
		safe = notify.StyleError.Render("unsafe to archive")
	}
	fmt.Fprintf(w, "%s: %s\n", v.Spec, safe)
	for _, issue := range v.Safety.Issues {
		fmt.Fprintf(w, "    issue: %s\n", issue)
	}
	fmt.Fprintf(w, "automatic archival: %s\n", v.Decision.Reason)
	return nil
}

func newArchiveCmd() *cobra.Command {
	var check, force bool
	cmd := &cobra.Command{
		Use:   "archive <spec>",
		Short: "Archive one spec",
		Long: "Archive a spec now, ignoring the archival delay and the enabled setting.\n" +
			"The spec must be complete unless --force is given; the safety checks always apply.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.specPath(args[0])
			if err != nil {
				return err
			}

			if check {
				d, err := a.engine.ShouldArchiveSpec(p)
				if err != nil {
					return err
				}
				v := checkView{Spec: filepath.Base(p), Decision: d, Safety: a.engine.ValidateArchivalSafety(p)}
				if err := render(cmd, v); err != nil {
					return err
				}
				if !v.Safety.CanProceed {
					return silentError{exitUserError}
				}
				return nil
			}

			if !force {
				st, err := a.detector.CheckCompletion(p)
				if err != nil {
					return err
				}
				if !st.IsComplete {
					return types.NewError(types.ErrValidationFailed, "archive", p,
						fmt.Errorf("not complete: %d of %d tasks done (use --force to archive anyway)", st.CompletedTasks, st.TotalTasks))
				}
			}

			// The result is rendered below.
			a.notifier.SetLevel(types.NotifyNone)
			res := a.engine.ArchiveSpec(cmd.Context(), p)
			res.OriginalPath = a.rel(res.OriginalPath)
			if res.ArchivePath != "" {
				res.ArchivePath = a.rel(res.ArchivePath)
			}
			if err := render(cmd, resultView(res)); err != nil {
				return err
			}
			switch {
			case !res.Success:
				return silentError{resultExitCode(res.ErrorCode)}
			case res.ErrorCode == types.CodeCleanupFailed:
				return silentError{exitSysError}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "report whether the spec can be archived without archiving it")
	cmd.Flags().BoolVar(&force, "force", false, "archive even when tasks remain open")
	return cmd
}

type batchView types.BatchReport

func (r batchView) renderText(w io.Writer) error {
	if len(r.Results) == 0 && len(r.Skipped) == 0 {
		return nil
	}
	tw := table(w)
	fmt.Fprintln(tw, "SPEC\tOUTCOME\tDETAIL")
	for _, res := range r.Results {
		switch {
		case !res.Success:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.SpecName, notify.StyleError.Render("failed"), res.Error)
		case res.ErrorCode == types.CodeCleanupFailed:
			fmt.Fprintf(tw, "%s\tarchived\t%s\n", res.SpecName, res.Error)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.SpecName, notify.StyleSuccess.Render("archived"), res.ArchivePath)
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(tw, "%s\tskipped\t%s\n", filepath.Base(s.Path), s.Reason)
	}
	return tw.Flush()
}

func newAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Archive every complete spec whose delay has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.AutoArchiveCompletedSpecs(cmd.Context())
			if rerr := render(cmd, batchView(report)); rerr != nil && err == nil {
				err = rerr
			}
			if err != nil {
				return err
			}
			if report.Failed() > 0 {
				return silentError{exitSysError}
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var debounce, interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Archive specs automatically as they are completed",
		Long: "Watch the specs directory and run an automatic archival pass after task\n" +
			"documents change, and periodically so archival delays can elapse.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if rep, err := a.index.ValidateAndRepair(); err != nil {
				a.log.Warn("archive index check failed", "error", err)
			} else if rep.Repaired {
				a.log.Info("archive index repaired", "issues", len(rep.Issues))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", a.rel(a.specsDir))
			return watch.Run(cmd.Context(), watch.Options{
				Root:        a.specsDir,
				ArchiveRoot: a.archiveRoot,
				Debounce:    debounce,
				Interval:    interval,
				Logger:      a.log,
				Trigger: func(ctx context.Context) {
					// Pick up configuration edits made while watching.
					a.config.Invalidate()
					if cfg, err := a.config.Load(); err == nil {
						a.notifier.SetLevel(cfg.NotificationLevel)
					}
					if _, err := a.engine.AutoArchiveCompletedSpecs(ctx); err != nil && ctx.Err() == nil {
						a.log.Error("archival pass failed", "error", err)
					}
				},
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period after an edit before archiving")
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultInterval, "period of unconditional archival passes (0 disables)")
	return cmd
}
