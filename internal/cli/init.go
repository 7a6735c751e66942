package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/index"
	"github.com/mesh-intelligence/specarchive/internal/paths"
)

func newInitCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize specarchive in a project",
		Long: "Write the settings file and default archival configuration if they are missing,\n" +
			"then create the specs directory. Existing files are left alone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", index.DefaultBackend, "archive index backend: "+strings.Join(index.Backends(), ", "))
	return cmd
}

func runInit(cmd *cobra.Command, backend string) error {
	if !slices.Contains(index.Backends(), backend) {
		return usageError{fmt.Errorf("unknown backend %q (want one of: %s)", backend, strings.Join(index.Backends(), ", "))}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	s := a.settings
	if cmd.Flags().Changed("backend") {
		s.IndexBackend = backend
	}
	wrote, err := writeSettingsIfMissing(a.root, s)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintln(out, "wrote", paths.SettingsFile)
	}

	// Load writes the defaults when the file is missing.
	if _, err := a.config.Load(); err != nil {
		return err
	}
	if err := a.fs.MkdirAll(a.specsDir, 0o755); err != nil {
		return fmt.Errorf("create specs directory: %w", err)
	}

	fmt.Fprintf(out, "specarchive initialized in %s\n", a.root)
	return nil
}
