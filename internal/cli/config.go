package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/specarchive/internal/config"
	"github.com/mesh-intelligence/specarchive/pkg/types"
)

type configView struct {
	Path   string               `json:"path" yaml:"path"`
	Config types.ArchivalConfig `json:"config" yaml:"config"`
}

func (v configView) renderText(w io.Writer) error {
	tw := table(w)
	fmt.Fprintf(tw, "# %s\n", v.Path)
	fmt.Fprintf(tw, "%s\t%t\n", config.KeyEnabled, v.Config.Enabled)
	fmt.Fprintf(tw, "%s\t%d\n", config.KeyDelayMinutes, v.Config.DelayMinutes)
	fmt.Fprintf(tw, "%s\t%s\n", config.KeyArchiveLocation, v.Config.ArchiveLocation)
	fmt.Fprintf(tw, "%s\t%s\n", config.KeyNotificationLevel, v.Config.NotificationLevel)
	fmt.Fprintf(tw, "%s\t%t\n", config.KeyBackupEnabled, v.Config.BackupEnabled)
	return tw.Flush()
}

type backupsView []string

func (v backupsView) renderText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "no backups")
		return err
	}
	for _, b := range v {
		fmt.Fprintln(w, filepath.Base(b))
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change archival settings",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigResetCmd(),
		newConfigBackupCmd(),
		newConfigBackupsCmd(),
		newConfigRestoreCmd(),
	)
	return cmd
}

// configCmd builds a config subcommand whose action needs only the
// configuration manager.
func configCmd(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, a *app, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return run(cmd, a, argv)
		},
	}
}

func (a *app) showConfig(cmd *cobra.Command, cfg types.ArchivalConfig) error {
	return render(cmd, configView{Path: a.rel(a.config.Path()), Config: cfg})
}

func newConfigShowCmd() *cobra.Command {
	return configCmd("show", "Print the archival configuration", cobra.NoArgs,
		func(cmd *cobra.Command, a *app, _ []string) error {
			cfg, err := a.config.Load()
			if err != nil {
				return err
			}
			return a.showConfig(cmd, cfg)
		})
}

func newConfigSetCmd() *cobra.Command {
	cmd := configCmd("set <key> <value>", "Change one archival setting", cobra.ExactArgs(2),
		func(cmd *cobra.Command, a *app, args []string) error {
			cfg, err := a.config.Set(args[0], args[1])
			if err != nil {
				return err
			}
			return a.showConfig(cmd, cfg)
		})
	cmd.Long = "Change one archival setting. Keys: " + strings.Join(config.Keys, ", ") + ".\n" +
		"A backup of the previous configuration is taken when backupEnabled is true."
	return cmd
}

func newConfigResetCmd() *cobra.Command {
	return configCmd("reset", "Restore the default archival settings", cobra.NoArgs,
		func(cmd *cobra.Command, a *app, _ []string) error {
			cfg, err := a.config.Reset()
			if err != nil {
				return err
			}
			return a.showConfig(cmd, cfg)
		})
}

func newConfigBackupCmd() *cobra.Command {
	return configCmd("backup", "Back up the current archival settings", cobra.NoArgs,
		func(cmd *cobra.Command, a *app, _ []string) error {
			path, err := a.config.Backup()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "backed up to", a.rel(path))
			return nil
		})
}

func newConfigBackupsCmd() *cobra.Command {
	return configCmd("backups", "List configuration backups, newest first", cobra.NoArgs,
		func(cmd *cobra.Command, a *app, _ []string) error {
			backups, err := a.config.ListBackups()
			if err != nil {
				return err
			}
			return render(cmd, backupsView(backups))
		})
}

func newConfigRestoreCmd() *cobra.Command {
	return configCmd("restore <backup>", "Restore archival settings from a backup", cobra.ExactArgs(1),
		func(cmd *cobra.Command, a *app, args []string) error {
			path, err := a.backupPath(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.config.RestoreFromBackup(path)
			if err != nil {
				return err
			}
			return a.showConfig(cmd, cfg)
		})
}

// backupPath resolves a backup argument. A bare file name is looked up in
// the backup directory; "latest" names the newest backup.
func (a *app) backupPath(arg string) (string, error) {
	if arg == "latest" {
		backups, err := a.config.ListBackups()
		if err != nil {
			return "", err
		}
		if len(backups) == 0 {
			return "", types.NewError(types.ErrNotFound, "restore config", "", errors.New("no backups"))
		}
		return backups[0], nil
	}
	if filepath.Base(arg) == arg {
		return filepath.Join(a.config.BackupDir(), arg), nil
	}
	return filepath.Abs(arg)
}
