package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"soclog/internal/config"
	"soclog/internal/fault"
	"soclog/internal/integrity"
	"soclog/internal/remote"
)

const (
	// ManifestFileName is the manifest written into every host output directory.
	ManifestFileName = "manifest.json"
	// SignatureFileName is the detached signature written next to the manifest.
	SignatureFileName = "manifest.sig"

	dirTimeLayout = "20060102_150405"
)

// ArtifactResult captures the execution result of a single collector.
type ArtifactResult struct {
	Name      string    `json:"name"`
	File      string    `json:"file,omitempty"`
	Status    Status    `json:"status,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_utc"`
	EndedAt   time.Time `json:"ended_utc"`
}

// HostResult captures everything produced for one host.
type HostResult struct {
	RunID         string           `json:"run_id"`
	Name          string           `json:"name"`
	Address       string           `json:"address"`
	OutputDir     string           `json:"output_dir,omitempty"`
	Artifacts     []ArtifactResult `json:"artifacts"`
	ManifestPath  string           `json:"manifest_path,omitempty"`
	SignaturePath string           `json:"signature_path,omitempty"`
	SigningError  string           `json:"signing_error,omitempty"`
	Archive       *PackageMetadata `json:"archive,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Clock provides time functions for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Options configures a Run.
type Options struct {
	// BaseDir is the root under which <host>/<timestamp> directories are made.
	BaseDir string
	// WindowStart is the earliest event time collectors ask for.
	WindowStart time.Time
	// Remote controls the WinRM transport.
	Remote remote.Options
	// AskPassword prompts for every host that has no password from the environment.
	AskPassword bool
	// Signer signs manifest.json when non-nil.
	Signer integrity.Signer
	// SigningKey selects the signing identity; empty uses the tool default.
	SigningKey string
	// AgeRecipient encrypts the archive when set.
	AgeRecipient string
}

// Run collects artifacts from hosts one at a time.
type Run struct {
	opts       Options
	collectors []Collector
	fs         afero.Fs
	dial       remote.Dialer
	prompt     config.Prompter
	lookup     config.LookupFunc
	clock      Clock
	logger     *slog.Logger
}

// NewRun creates a new Run orchestrator. Nil collaborators fall back to the
// OS filesystem, the WinRM dialer, the terminal prompter, the process
// environment, the system clock, and slog.Default.
func NewRun(opts Options, fs afero.Fs, dial remote.Dialer, prompt config.Prompter, clock Clock, logger *slog.Logger) *Run {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dial == nil {
		dial = remote.Dial
	}
	if prompt == nil {
		prompt = config.TerminalPrompter
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Run{
		opts:   opts,
		fs:     fs,
		dial:   dial,
		prompt: prompt,
		clock:  clock,
		logger: logger,
	}
}

// SetEnvLookup overrides how password environment variables are read.
func (r *Run) SetEnvLookup(lookup config.LookupFunc) {
	r.lookup = lookup
}

// Register adds a collector to the execution list. Collectors run in
// registration order.
func (r *Run) Register(c Collector) {
	r.collectors = append(r.collectors, c)
}

// Collectors returns the registered collector names in order.
func (r *Run) Collectors() []string {
	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	return names
}

// CollectAll processes every host sequentially and returns a result for
// each, including hosts that failed.
func (r *Run) CollectAll(ctx context.Context, hosts []config.HostConfig) ([]HostResult, error) {
	results := make([]HostResult, 0, len(hosts))
	var firstError error
	errorCount := 0

	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := r.CollectHost(ctx, host)
		results = append(results, res)
		if res.Error != "" {
			if firstError == nil {
				firstError = fmt.Errorf("host %s failed: %s", res.Name, res.Error)
			}
			errorCount++
		}
	}

	switch {
	case errorCount == 0:
		return results, nil
	case errorCount == 1:
		return results, firstError
	default:
		return results, fmt.Errorf("%s (and %d other host errors)", firstError.Error(), errorCount-1)
	}
}

// CollectHost runs the full pipeline for a single host: credentials,
// session, collectors, manifest, optional signature, archive.
func (r *Run) CollectHost(ctx context.Context, host config.HostConfig) HostResult {
	res := HostResult{
		RunID:     uuid.NewString(),
		Name:      host.Name,
		Address:   host.Host,
		Artifacts: []ArtifactResult{},
	}
	log := r.logger.With("host", host.Name, "run_id", res.RunID)
	log.Info("collecting from host", "address", host.Host)

	password, err := r.password(host)
	if err != nil {
		res.Error = err.Error()
		log.Error("no password available", "err", err)
		return res
	}

	exec, err := r.dial(ctx, remote.Credentials{Address: host.Host, Username: host.Username, Password: password}, r.opts.Remote)
	if err != nil {
		res.Error = err.Error()
		log.Error("failed to connect", "err", err)
		return res
	}

	now := r.clock.Now()
	stamp := now.Format(dirTimeLayout)
	hostDir := filepath.Join(r.opts.BaseDir, SanitizeName(host.Name))
	outDir := filepath.Join(hostDir, stamp)
	if err := r.fs.MkdirAll(outDir, 0o755); err != nil {
		res.Error = fault.Wrap(err, fault.KindIO, "create output directory").Error()
		log.Error("failed to create output directory", "path", outDir, "err", err)
		return res
	}
	res.OutputDir = outDir
	log.Info("output directory ready", "path", outDir)

	var written []string
	for _, c := range r.collectors {
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			return res
		}

		ar, path := r.runCollector(ctx, exec, c, outDir, log)
		res.Artifacts = append(res.Artifacts, ar)
		if path != "" {
			written = append(written, path)
		}
	}

	if len(written) == 0 {
		res.Error = "no artifacts collected"
		log.Warn("no artifacts collected; skipping manifest and archive")
		return res
	}

	manifestPath := filepath.Join(outDir, ManifestFileName)
	m, err := integrity.NewBuilder(r.fs, r.clock.Now).Build(written, host.Name, nil)
	if err == nil {
		err = integrity.NewWriter(r.fs).Write(m, manifestPath)
	}
	if err != nil {
		res.Error = err.Error()
		log.Error("failed to write manifest", "err", err)
		return res
	}
	res.ManifestPath = manifestPath
	log.Info("manifest generated", "path", manifestPath, "files", len(m.Files))

	if r.opts.Signer != nil {
		sigPath := filepath.Join(outDir, SignatureFileName)
		if err := r.opts.Signer.Sign(ctx, manifestPath, sigPath, r.opts.SigningKey); err != nil {
			res.SigningError = err.Error()
			log.Warn("failed to sign manifest; continuing unsigned", "err", err)
		} else {
			res.SignaturePath = sigPath
			log.Info("manifest signed", "path", sigPath)
		}
	}

	archivePath := filepath.Join(hostDir, fmt.Sprintf("soclog_%s_%s.tar.gz", SanitizeName(host.Name), stamp))
	meta, err := BundleAndMaybeEncrypt(ctx, r.fs, outDir, archivePath, now, r.opts.AgeRecipient)
	if err != nil {
		res.Error = err.Error()
		log.Error("failed to create archive", "err", err)
		return res
	}
	res.Archive = meta
	log.Info("archive created", "path", meta.Path, "files", meta.FileCount, "encrypted", meta.Encrypted)

	return res
}

func (r *Run) password(host config.HostConfig) (string, error) {
	if pw, ok := config.ResolvePassword(host, r.lookup); ok && pw != "" {
		return pw, nil
	}
	if host.AskPassword || r.opts.AskPassword {
		pw, err := r.prompt(fmt.Sprintf("Password for %s@%s: ", host.Username, host.Host))
		if err != nil {
			return "", err
		}
		if pw != "" {
			return pw, nil
		}
	}
	return "", fault.New(fault.KindValidation, fmt.Sprintf("no password available for host %s; set password_env or use --ask-pass", host.Name))
}

// runCollector executes one collector and writes its output. It returns the
// written path, or "" when nothing was written.
func (r *Run) runCollector(ctx context.Context, exec remote.Executor, c Collector, outDir string, log *slog.Logger) (ArtifactResult, string) {
	ar := ArtifactResult{Name: c.Name(), StartedAt: r.clock.Now().UTC()}
	log = log.With("artifact", c.Name())

	out, err := c.Collect(ctx, exec, r.opts.WindowStart)
	if err != nil {
		ar.EndedAt = r.clock.Now().UTC()
		ar.Error = err.Error()
		log.Error("collection failed", "err", err)
		return ar, ""
	}

	path := filepath.Join(outDir, c.FileName())
	if err := r.writeArtifact(path, out.Data); err != nil {
		ar.EndedAt = r.clock.Now().UTC()
		ar.Error = err.Error()
		log.Error("failed to write artifact", "path", path, "err", err)
		return ar, ""
	}

	ar.EndedAt = r.clock.Now().UTC()
	ar.File = c.FileName()
	ar.Status = out.Status
	ar.OK = true

	switch out.Status {
	case StatusMissing:
		log.Warn("source not present on host", "path", path)
	case StatusEmpty:
		log.Info("no events for requested window", "path", path)
	default:
		log.Info("artifact collected", "path", path)
	}
	return ar, path
}

func (r *Run) writeArtifact(path string, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format artifact json: %w", err)
	}
	if err := afero.WriteFile(r.fs, path, buf.Bytes(), 0o644); err != nil {
		return fault.Wrap(err, fault.KindIO, "write artifact")
	}
	return nil
}
