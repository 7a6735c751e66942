// Package cli implements the specarchive command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	root     string
	specsDir string
	output   string
	verbose  bool
}

var flags rootFlags

// NewRootCmd creates the top-level "specarchive" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}

	root := &cobra.Command{
		Use:   "specarchive",
		Short: "Archive completed specs",
		Long: "specarchive moves finished spec directories out of the active specs tree\n" +
			"into a dated archive, keeping an index of everything archived.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := formatters[flags.output]; !ok {
				return usageError{fmt.Errorf("unknown output format %q (want one of: %s)", flags.output, strings.Join(formatNames(), ", "))}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.root, "root", "", "project root (default: $SPECARCHIVE_ROOT or nearest directory holding .kiro)")
	root.PersistentFlags().StringVar(&flags.specsDir, "specs-dir", "", "specs directory (default: .kiro/specs)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", formatText, "output format: "+strings.Join(formatNames(), ", "))
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newReadyCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newAutoCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newArchivesCmd())
	root.AddCommand(newConfigCmd())

	wrapArgs(root)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	code := report(os.Stderr, err)
	stop()
	os.Exit(code)
}

// report prints err and returns the process exit code for it.
func report(w io.Writer, err error) int {
	if err == nil {
		return exitSuccess
	}
	var silent silentError
	if !errors.As(err, &silent) {
		fmt.Fprintln(w, "Error:", err)
	}
	return exitCode(err)
}

// exitCode maps an error to an exit code. Mistakes the user can fix
// (bad arguments, bad config, unknown specs) exit 1; everything else is a
// system failure.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var silent silentError
	if errors.As(err, &silent) {
		return silent.code
	}
	var usage usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUserError
	}
	for _, kind := range []error{
		types.ErrValidationFailed,
		types.ErrNotFound,
		types.ErrConfig,
		types.ErrUnknownBackend,
	} {
		if errors.Is(err, kind) {
			return exitUserError
		}
	}
	return exitSysError
}

// usageError marks bad command-line input.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// silentError carries an exit code for a failure the command has already
// reported on its output.
type silentError struct{ code int }

func (e silentError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// wrapArgs marks positional-argument failures as usage errors throughout
// the command tree.
func wrapArgs(cmd *cobra.Command) {
	if args := cmd.Args; args != nil {
		cmd.Args = func(c *cobra.Command, a []string) error {
			if err := args(c, a); err != nil {
				return usageError{err}
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		wrapArgs(sub)
	}
}
