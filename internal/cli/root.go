// Package cli provides command-line interface implementation for soclog.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the soclog release version.
const Version = "0.1.0"

// NewRootCmd builds the soclog command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "soclog",
		Short: "Collect Windows event logs and process lists over WinRM",
		Long: `soclog connects from a Linux workstation to one or more Windows hosts over
WinRM, collects recent Sysmon and Security events plus the running process
list, and packages everything into a timestamped archive with a SHA-256
manifest that can optionally be signed with gpg.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), verbose))
		},
		Run: func(cmd *cobra.Command, args []string) {
			// Show help and exit 0 if no subcommand is provided
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewCollectCmd())
	cmd.AddCommand(NewManifestCmd())
	cmd.AddCommand(NewVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("soclog %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = Version

	return cmd
}

// NewVersionCmd prints the release version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the soclog version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "soclog %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Execute runs the root command and reports any error on stderr.
// This is called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
