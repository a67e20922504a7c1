package integrity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"soclog/internal/fault"
)

// DefaultGPGBinary is the signing tool used when GPGSigner.Binary is empty.
const DefaultGPGBinary = "gpg"

// Signer produces a detached signature over a manifest file.
type Signer interface {
	// Sign writes a detached signature for manifestPath to signaturePath.
	// An empty keyID selects the tool's default signing identity.
	Sign(ctx context.Context, manifestPath, signaturePath, keyID string) error
}

// runFunc executes name with args and returns combined stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// GPGSigner signs manifests by invoking gpg as a subprocess.
type GPGSigner struct {
	// Binary is the gpg executable name or path.
	Binary string

	run runFunc
}

// NewGPGSigner returns a GPGSigner for binary, defaulting to gpg.
func NewGPGSigner(binary string) *GPGSigner {
	if binary == "" {
		binary = DefaultGPGBinary
	}
	return &GPGSigner{Binary: binary}
}

// SignManifest signs manifestPath with the default gpg binary.
func SignManifest(ctx context.Context, manifestPath, signaturePath, keyID string) error {
	return NewGPGSigner("").Sign(ctx, manifestPath, signaturePath, keyID)
}

// GPGArgs returns the gpg argument list for an armored detached signature.
func GPGArgs(manifestPath, signaturePath, keyID string) []string {
	args := []string{"--armor", "--output", signaturePath, "--detach-sign"}
	if keyID != "" {
		args = append(args, "-u", keyID)
	}
	return append(args, manifestPath)
}

// Sign runs gpg against manifestPath. The manifest is only read; a failed
// attempt leaves it untouched and produces no signature file.
func (s *GPGSigner) Sign(ctx context.Context, manifestPath, signaturePath, keyID string) error {
	binary := s.Binary
	if binary == "" {
		binary = DefaultGPGBinary
	}

	if _, err := os.Stat(manifestPath); err != nil {
		return fault.Wrap(fault.Wrap(err, fault.KindIO, "stat manifest"), fault.KindSigning, "sign manifest")
	}

	run := s.run
	if run == nil {
		path, err := exec.LookPath(binary)
		if err != nil {
			return fault.Wrap(err, fault.KindSigning, "locate signing tool")
		}
		binary = path
		run = combinedOutput
	}

	// gpg asks before overwriting an existing output file.
	if err := os.Remove(signaturePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fault.Wrap(err, fault.KindSigning, "remove stale signature")
	}

	out, err := run(ctx, binary, GPGArgs(manifestPath, signaturePath, keyID)...)
	if err != nil {
		_ = os.Remove(signaturePath)
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return fault.Wrap(err, fault.KindSigning, "gpg detach-sign")
	}
	return nil
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
