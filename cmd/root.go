package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ibarkgames/scripts/sync"
)

const envPrefix = "MIRROR"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mirror-pull <backup_path> <local_project>",
		Short: "Mirror a backup folder into a local project",
		Long: `mirror-pull makes the local project an exact copy of the backup folder:
changed and new files are copied, files and folders missing from the backup
are removed, and cache/build folders are never touched on either side.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, v, args[0], args[1])
		},
	}

	addCommonFlags(cmd.PersistentFlags())
	flags := cmd.Flags()
	flags.Bool("dry-run", false, "report what would change without touching the local project")
	flags.String("trash", "", "move removed entries into this folder instead of deleting them")
	flags.Bool("watch", false, "keep running and mirror changes as they happen")

	cmd.AddCommand(newVerifyCmd(v))
	return cmd
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.StringArray("exclude", nil, "additional exclusion pattern (repeatable)")
	flags.String("exclude-from", "", "file with one exclusion pattern per line")
	flags.Bool("no-default-excludes", false, "do not exclude DerivedDataCache, Intermediate, Saved/Cooked and Binaries")
	flags.String("match", sync.MatchSubpath.String(), "exclusion matching: subpath or segment")
	flags.String("log-dir", "", "write level-split log files to this directory")
	flags.BoolP("quiet", "q", false, "only log warnings and errors")
	flags.Bool("debug", false, "log every visited entry")
}

// initConfig binds flags, MIRROR_* environment variables and the optional
// config file into v. Flags win over env, env over the file.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	level := slog.LevelInfo
	switch {
	case v.GetBool("debug"):
		level = slog.LevelDebug
	case v.GetBool("quiet"):
		level = slog.LevelWarn
	}
	return sync.InitLogger(v.GetString("log-dir"), level)
}

// exclusions builds the exclusion set from the defaults, --exclude-from and
// --exclude, in that order.
func exclusions(fsys afero.Fs, v *viper.Viper) (*sync.ExclusionSet, error) {
	mode, err := sync.ParseMatchMode(v.GetString("match"))
	if err != nil {
		return nil, err
	}

	var patterns []string
	if !v.GetBool("no-default-excludes") {
		patterns = append(patterns, sync.DefaultExclusions...)
	}
	if from := v.GetString("exclude-from"); from != "" {
		extra, err := sync.LoadExcludeFile(fsys, from)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, extra...)
	}
	patterns = append(patterns, v.GetStringSlice("exclude")...)

	return sync.NewExclusionSet(mode, patterns...)
}

// setup resolves the roots and exclusions shared by every command.
func setup(v *viper.Viper, source, dest string) (afero.Fs, sync.Roots, *sync.ExclusionSet, error) {
	fsys := afero.NewOsFs()
	roots, err := sync.ResolveRoots(fsys, source, dest)
	if err != nil {
		return nil, roots, nil, rootError(err)
	}
	excl, err := exclusions(fsys, v)
	if err != nil {
		return nil, roots, nil, err
	}
	return fsys, roots, excl, nil
}

// missingRootError rewords a missing root in the terms of the command line.
type missingRootError struct {
	msg string
	err error
}

func (e *missingRootError) Error() string { return e.msg }
func (e *missingRootError) Unwrap() error { return e.err }

func rootError(err error) error {
	var missing *sync.RootMissingError
	if !errors.As(err, &missing) {
		return err
	}
	label := "Local project folder"
	if missing.Role == "source" {
		label = "Backup folder"
	}
	return &missingRootError{msg: fmt.Sprintf("%s not found: %s", label, missing.Path), err: err}
}

func runPull(cmd *cobra.Command, v *viper.Viper, source, dest string) error {
	fsys, roots, excl, err := setup(v, source, dest)
	if err != nil {
		return err
	}

	opts := sync.Options{
		DryRun:   v.GetBool("dry-run"),
		TrashDir: v.GetString("trash"),
	}
	if opts.TrashDir != "" {
		if opts.TrashDir, err = sync.ResolveTrashDir(opts.TrashDir); err != nil {
			return err
		}
	}
	engine := sync.NewEngine(fsys, roots, excl, opts)

	if v.GetBool("watch") {
		if opts.DryRun {
			return errors.New("--watch cannot be combined with --dry-run")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sync.NewDaemon(engine).Run(ctx)
	}

	report, err := engine.Run()
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), roots, report)
	return nil
}

func printReport(w io.Writer, roots sync.Roots, report *sync.Report) {
	if report.DryRun {
		fmt.Fprintf(w, "Dry run complete → %s\n", roots.Dest)
	} else {
		fmt.Fprintf(w, "Pull complete → %s\n", roots.Dest)
	}
	fmt.Fprintf(w, "   Time: %.1fs\n", report.Elapsed.Seconds())
	fmt.Fprintf(w, "   %s\n", report)
	if report.DryRun {
		for _, c := range report.Changes {
			fmt.Fprintf(w, "   %-7s %s\n", c.Action, c.Path)
		}
	}
	for _, f := range report.PruneFailures {
		fmt.Fprintf(w, "   could not remove %s: %s\n", f.Path, f.Err)
	}
}
