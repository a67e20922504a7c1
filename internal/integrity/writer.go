package integrity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"
	"github.com/spf13/afero"

	"soclog/internal/fault"
)

// Writer serializes manifests to an afero filesystem.
type Writer struct {
	fs afero.Fs
}

// NewWriter returns a Writer targeting fs, or the OS filesystem when fs is nil.
func NewWriter(fs afero.Fs) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs}
}

// WriteManifest writes m to outputPath on the local disk.
func WriteManifest(m *Manifest, outputPath string) error {
	return NewWriter(nil).Write(m, outputPath)
}

// Marshal returns the canonical form of m: keys sorted at every level per
// RFC 8785, then indented with two spaces. Equal manifests always produce
// identical bytes.
func Marshal(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, fault.New(fault.KindValidation, "manifest is nil")
	}
	out := *m
	if out.Files == nil {
		out.Files = []FileRecord{}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, fmt.Errorf("indent manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes m and replaces outputPath with it in a single rename, so
// the file on disk is either the previous content or the complete manifest.
func (w *Writer) Write(m *Manifest, outputPath string) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := ValidateManifestJSON(data); err != nil {
		return err
	}
	return w.writeAtomic(outputPath, data, 0o644)
}

// checkTarget rejects an existing target that a plain write could not
// replace: a read-only file, a symlink, or anything not a regular file.
func (w *Writer) checkTarget(path string) error {
	var info os.FileInfo
	var err error
	if lst, ok := w.fs.(afero.Lstater); ok {
		info, _, err = lst.LstatIfPossible(path)
	} else {
		info, err = w.fs.Stat(path)
	}
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fault.Wrap(err, fault.KindIO, "stat manifest target")
	}
	if !info.Mode().IsRegular() {
		return fault.New(fault.KindIO, fmt.Sprintf("manifest target %s is not a regular file", path))
	}
	if info.Mode().Perm()&0o200 == 0 {
		return fault.New(fault.KindIO, fmt.Sprintf("manifest target %s is read-only", path))
	}
	return nil
}

func (w *Writer) writeAtomic(path string, content []byte, mode os.FileMode) error {
	if err := w.checkTarget(path); err != nil {
		return err
	}

	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := afero.TempFile(w.fs, parent, "."+base+".tmp-*")
	if err != nil {
		return fault.Wrap(err, fault.KindIO, "create temp manifest")
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = w.fs.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fault.Wrap(err, fault.KindIO, "write temp manifest")
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fault.Wrap(err, fault.KindIO, "sync temp manifest")
	}
	if err := tempFile.Close(); err != nil {
		return fault.Wrap(err, fault.KindIO, "close temp manifest")
	}
	if err := w.fs.Chmod(tempPath, mode); err != nil {
		return fault.Wrap(err, fault.KindIO, "chmod temp manifest")
	}
	if err := w.fs.Rename(tempPath, path); err != nil {
		return fault.Wrap(err, fault.KindIO, "rename manifest into place")
	}
	cleanup = false
	return nil
}
