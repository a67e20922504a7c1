package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"soclog/internal/config"
	"soclog/internal/core"
	"soclog/internal/fault"
	"soclog/internal/integrity"
	"soclog/internal/modules/win_evtx"
	"soclog/internal/modules/win_process"
	"soclog/internal/parse"
	"soclog/internal/remote"
	"soclog/internal/schema"
)

type collectFlags struct {
	host        string
	configPath  string
	user        string
	hours       int
	days        int
	since       string
	outputDir   string
	askPass     bool
	passwordEnv string
	sign        bool
	gpgKey      string
	gpgBinary   string
	encryptAge  string
	https       bool
	port        int
	insecure    bool
	ntlm        bool
	opTimeout   time.Duration
}

// NewCollectCmd builds the collect command.
func NewCollectCmd() *cobra.Command {
	f := &collectFlags{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect Sysmon, Security and process artifacts from Windows hosts",
		Long: `The collect command connects to each host in turn over WinRM, writes
sysmon_events.json, security_events.json and processes.json into
<output-dir>/<host>/<timestamp>/, records their SHA-256 hashes in
manifest.json, optionally signs the manifest with gpg, and packs the
directory into a tar.gz archive (optionally age-encrypted).`,
		Example: `  soclog collect --host 192.168.56.10 --user 'LAB\analyst' --ask-pass
  soclog collect --config hosts.yaml --days 2 --sign-manifest --gpg-key dfir@lab.local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", "", "single Windows host (IP or hostname); use with --user")
	flags.StringVar(&f.configPath, "config", "", "YAML file listing multiple Windows hosts")
	flags.StringVar(&f.user, "user", "", `username for single host mode, e.g. 'LAB\analyst'`)
	flags.IntVar(&f.hours, "hours", 0, "collect logs for the last N hours (default 24)")
	flags.IntVar(&f.days, "days", 0, "collect logs for the last N days")
	flags.StringVar(&f.since, "since", "", "RFC3339 timestamp or duration like 7d, 72h, 15m, 2w")
	flags.StringVar(&f.outputDir, "output-dir", defaultOutputDir(), "base output directory")
	flags.BoolVar(&f.askPass, "ask-pass", false, "prompt for passwords not provided via environment")
	flags.StringVar(&f.passwordEnv, "password-env", "", "environment variable holding the password (single host mode)")
	flags.BoolVar(&f.sign, "sign-manifest", false, "sign manifest.json with gpg (requires gpg installed)")
	flags.StringVar(&f.gpgKey, "gpg-key", "", "gpg key ID or email used to sign the manifest")
	flags.StringVar(&f.gpgBinary, "gpg-binary", integrity.DefaultGPGBinary, "gpg executable")
	flags.StringVar(&f.encryptAge, "encrypt-age", "", "age public key to encrypt the archive (must start with age1)")
	flags.BoolVar(&f.https, "https", false, "use WinRM over HTTPS")
	flags.IntVar(&f.port, "port", 0, "WinRM port (default 5985, or 5986 with --https)")
	flags.BoolVar(&f.insecure, "insecure", false, "skip TLS certificate validation")
	flags.BoolVar(&f.ntlm, "ntlm", false, "authenticate with NTLM instead of basic auth")
	flags.DurationVar(&f.opTimeout, "operation-timeout", remote.DefaultOperationTimeout, "WinRM operation timeout")

	cmd.MarkFlagsMutuallyExclusive("host", "config")
	cmd.MarkFlagsOneRequired("host", "config")
	cmd.MarkFlagsMutuallyExclusive("hours", "days", "since")

	return cmd
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "soclog_output"
	}
	return filepath.Join(home, "soclog_output")
}

func runCollect(cmd *cobra.Command, f *collectFlags) error {
	ctx := context.Background()
	now := time.Now()
	logger := slog.Default()

	hosts, err := resolveHosts(f)
	if err != nil {
		return err
	}

	var hours, days *int
	if cmd.Flags().Changed("hours") {
		hours = &f.hours
	}
	if cmd.Flags().Changed("days") {
		days = &f.days
	}
	windowStart, err := parse.NormalizeWindow(hours, days, f.since, now)
	if err != nil {
		return err
	}

	if f.encryptAge != "" {
		if err := core.ValidateAgePublicKey(f.encryptAge); err != nil {
			return fmt.Errorf("invalid --encrypt-age: %w", err)
		}
	}

	baseDir, err := filepath.Abs(f.outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	opts := core.Options{
		BaseDir:     baseDir,
		WindowStart: windowStart,
		Remote: remote.Options{
			HTTPS:            f.https,
			Port:             f.port,
			Insecure:         f.insecure,
			NTLM:             f.ntlm,
			OperationTimeout: f.opTimeout,
		},
		AskPassword:  f.askPass,
		SigningKey:   f.gpgKey,
		AgeRecipient: f.encryptAge,
	}
	if f.sign {
		opts.Signer = integrity.NewGPGSigner(f.gpgBinary)
	}

	run := core.NewRun(opts, nil, remote.Dial, config.TerminalPrompter, core.SystemClock{}, logger)
	run.Register(win_evtx.NewSysmon())
	run.Register(win_evtx.NewSecurity())
	run.Register(win_process.NewProcesses())

	logger.Info("starting collection",
		"hosts", len(hosts),
		"collectors", len(run.Collectors()),
		"window_start", windowStart.Format(time.RFC3339),
		"output_dir", baseDir)

	results, collectErr := run.CollectAll(ctx, hosts)
	if collectErr != nil {
		logger.Warn("collection completed with errors", "err", collectErr)
	} else {
		logger.Info("collection completed successfully")
	}

	output := schema.NewRunOutput(Version, now, windowStart, run.Collectors(), f.sign, results)
	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))

	return collectErr
}

func resolveHosts(f *collectFlags) ([]config.HostConfig, error) {
	if f.configPath != "" {
		if f.user != "" {
			return nil, fault.New(fault.KindValidation, "--config mode does not use --user")
		}
		return config.LoadHosts(f.configPath)
	}
	return config.SingleHost(f.host, f.user, f.passwordEnv, f.askPass)
}
