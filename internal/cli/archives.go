package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/notify"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

type entriesView []types.IndexEntry

func (v entriesView) renderText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no archives")
		return err
	}
	tw := table(w)
	fmt.Fprintln(tw, "SPEC\tTASKS\tARCHIVED\tPATH")
	for _, e := range v {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.SpecName, e.TotalTasks, humanize.Time(e.ArchivalDate), e.ArchivePath)
	}
	return tw.Flush()
}

type statsView types.IndexStats

func (s statsView) renderText(w io.Writer) error {
	fmt.Fprintf(w, "archives:    %s\n", humanize.Comma(int64(s.TotalArchives)))
	fmt.Fprintf(w, "total tasks: %s\n", humanize.Comma(int64(s.TotalTasks)))
	if s.OldestArchive != nil {
		fmt.Fprintf(w, "oldest:      %s (%s)\n", s.OldestArchive.SpecName, humanize.Time(s.OldestArchive.ArchivalDate))
	}
	if s.NewestArchive != nil {
		fmt.Fprintf(w, "newest:      %s (%s)\n", s.NewestArchive.SpecName, humanize.Time(s.NewestArchive.ArchivalDate))
	}
	return nil
}

type repairView types.RepairReport

func (r repairView) renderText(w io.Writer) error {
	switch {
	case r.Repaired:
		fmt.Fprintln(w, notify.StyleSuccess.Render("archive index repaired"))
	case r.IsValid:
		fmt.Fprintln(w, "archive index is consistent")
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "    %s\n", issue)
	}
	return nil
}

func newArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "Inspect and maintain the archive",
	}
	cmd.AddCommand(
		newArchivesListCmd(),
		newArchivesSearchCmd(),
		newArchivesStatsCmd(),
		newArchivesRepairCmd(),
		newArchivesRemoveCmd(),
	)
	return cmd
}

// corruptHint adds a repair suggestion to index corruption errors.
func corruptHint(err error) error {
	if types.CodeOf(err) == types.CodeIndexCorrupt {
		return fmt.Errorf("%w (run \"specarchive archives repair\")", err)
	}
	return err
}

func newArchivesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.engine.ArchivedSpecs()
			if err != nil {
				return corruptHint(err)
			}
			return render(cmd, entriesView(entries))
		},
	}
}

func newArchivesSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find archives whose spec name contains term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.index.Search(args[0])
			if err != nil {
				return corruptHint(err)
			}
			return render(cmd, entriesView(entries))
		},
	}
}

func newArchivesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.index.GetStats()
			if err != nil {
				return corruptHint(err)
			}
			return render(cmd, statsView(stats))
		},
	}
}

func newArchivesRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Reconcile the archive index with the archive directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.index.ValidateAndRepair()
			if err != nil {
				return err
			}
			return render(cmd, repairView(report))
		},
	}
}

func newArchivesRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <archive>",
		Short: "Delete an archived spec and its index entry",
		Long:  "Delete an archive directory by name or path. The archive must lie inside the archive root.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return usageError{fmt.Errorf("refusing to delete %s without --yes", args[0])}
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			path, err := a.engine.ResolveArchivePath(args[0])
			if err != nil {
				return err
			}
			if err := a.engine.RemoveArchivedSpec(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed", a.rel(path))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
