package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/completion"
	"github.com/mesh-intelligence/specarchive/internal/notify"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// specArgs resolves the optional spec argument, or lists every spec.
func (a *app) specArgs(args []string) ([]string, error) {
	if len(args) == 1 {
		p, err := a.specPath(args[0])
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	}
	return a.scanner.ListSpecs()
}

type specStatus struct {
	Name           string    `json:"name" yaml:"name"`
	Path           string    `json:"path" yaml:"path"`
	IsComplete     bool      `json:"isComplete" yaml:"isComplete"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	Percent        int       `json:"percent" yaml:"percent"`
	LastModified   time.Time `json:"lastModified" yaml:"lastModified"`
}

type statusView []specStatus

func (v statusView) renderText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no specs found")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "SPEC\tTASKS\tDONE\tMODIFIED")
	for _, s := range v {
		done := fmt.Sprintf("%d%%", s.Percent)
		if s.IsComplete {
			done = notify.StyleSuccess.Render(done)
		}
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\n", s.Name, s.CompletedTasks, s.TotalTasks, done, humanize.Time(s.LastModified))
	}
	return tw.Flush()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [spec]",
		Short: "Show task completion for specs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			specs, err := a.specArgs(args)
			if err != nil {
				return err
			}
			view := statusView{}
			for _, p := range specs {
				st, err := a.detector.CheckCompletion(p)
				if err != nil {
					if len(args) == 1 {
						return err
					}
					a.log.Warn("skipping spec", "spec", p, "error", err)
					continue
				}
				view = append(view, specStatus{
					Name:           filepath.Base(p),
					Path:           a.rel(p),
					IsComplete:     st.IsComplete,
					TotalTasks:     st.TotalTasks,
					CompletedTasks: st.CompletedTasks,
					Percent:        completion.Percentage(st.TotalTasks, st.CompletedTasks),
					LastModified:   st.LastModified,
				})
			}
			return render(cmd, view)
		},
	}
}

type validationView []types.SpecValidation

func (v validationView) renderText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no specs found")
		return err
	}
	for _, sv := range v {
		mark := notify.StyleSuccess.Render("✓")
		if !sv.IsValid {
			mark = notify.StyleError.Render("✗")
		}
		fmt.Fprintf(w, "%s %s\n", mark, filepath.Base(sv.Path))
		for _, issue := range sv.Issues {
			fmt.Fprintf(w, "    issue: %s\n", issue)
		}
		for _, warning := range sv.Warnings {
			fmt.Fprintln(w, notify.StyleMuted.Render("    warning: "+warning))
		}
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [spec]",
		Short: "Check spec directory structure",
		Long:  "Validate one spec, or every spec, and exit 1 when any has issues.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			specs, err := a.specArgs(args)
			if err != nil {
				return err
			}
			view := validationView{}
			valid := true
			for _, p := range specs {
				sv, err := a.scanner.Validate(p)
				if err != nil {
					return err
				}
				valid = valid && sv.IsValid
				view = append(view, sv)
			}
			if err := render(cmd, view); err != nil {
				return err
			}
			if !valid {
				return silentError{exitUserError}
			}
			return nil
		},
	}
}

type decision struct {
	Spec                  string `json:"spec" yaml:"spec"`
	types.ArchiveDecision `yaml:",inline"`
}

type readyView []decision

func (v readyView) renderText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no specs found")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "SPEC\tREADY\tREASON")
	for _, d := range v {
		ready := "no"
		if d.ShouldArchive {
			ready = notify.StyleSuccess.Render("yes")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Spec, ready, d.Reason)
	}
	return tw.Flush()
}

func newReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Show which specs are due for automatic archival",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			specs, err := a.scanner.ListSpecs()
			if err != nil {
				return err
			}
			view := readyView{}
			for _, p := range specs {
				d, err := a.engine.ShouldArchiveSpec(p)
				if err != nil {
					return err
				}
				view = append(view, decision{Spec: filepath.Base(p), ArchiveDecision: d})
			}
			return render(cmd, view)
		},
	}
}
