package core

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/spf13/afero"

	"soclog/internal/fault"
)

// PackageMetadata contains information about the created package.
type PackageMetadata struct {
	Path         string `json:"archive_path"`
	Encrypted    bool   `json:"encrypted"`
	FileCount    int    `json:"file_count"`
	BytesWritten int64  `json:"bytes_written"`
}

// BundleAndMaybeEncrypt writes a tar.gz of srcDir to archivePath, with
// entry names relative to srcDir. When agePublicKey is set the stream is
// encrypted to that recipient and ".age" is appended to the path.
func BundleAndMaybeEncrypt(ctx context.Context, fs afero.Fs, srcDir, archivePath string, timestamp time.Time, agePublicKey string) (*PackageMetadata, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	var recipient *age.X25519Recipient
	encrypted := agePublicKey != ""
	if encrypted {
		var err error
		recipient, err = age.ParseX25519Recipient(agePublicKey)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindValidation, "parse age public key")
		}
		archivePath += ".age"
	}

	if rel, err := filepath.Rel(srcDir, archivePath); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, fault.New(fault.KindValidation, fmt.Sprintf("archive %s must not be inside %s", archivePath, srcDir))
	}

	outFile, err := fs.Create(archivePath)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "create archive")
	}
	defer outFile.Close()

	// Set up the writer pipeline
	var sink io.Writer = outFile
	var encWriter io.WriteCloser
	if encrypted {
		encWriter, err = age.Encrypt(outFile, recipient)
		if err != nil {
			return nil, fmt.Errorf("failed to create age encryption writer: %w", err)
		}
		sink = encWriter
	}

	counter := &countingWriter{wrapped: sink}
	gzWriter := gzip.NewWriter(counter)
	tarWriter := tar.NewWriter(gzWriter)

	fileCount := 0
	err = afero.Walk(fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == srcDir {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("failed to calculate relative path for %s: %w", path, err)
		}
		tarPath := filepath.ToSlash(relPath)

		if info.IsDir() {
			return tarWriter.WriteHeader(&tar.Header{
				Name:     tarPath + "/",
				Mode:     0o755,
				Typeflag: tar.TypeDir,
				ModTime:  timestamp,
			})
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := fs.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", path, err)
		}
		defer file.Close()

		header := &tar.Header{
			Name:     tarPath,
			Mode:     0o644,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}
		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("failed to copy file %s to archive: %w", path, err)
		}

		fileCount++
		return nil
	})
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "walk output directory")
	}

	// Close writers in correct order
	if err := tarWriter.Close(); err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "close tar writer")
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "close gzip writer")
	}
	if encrypted {
		if err := encWriter.Close(); err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "close age encryption writer")
		}
	}

	bytesWritten := counter.count
	if stat, err := outFile.Stat(); err == nil {
		bytesWritten = stat.Size()
	}

	return &PackageMetadata{
		Path:         archivePath,
		Encrypted:    encrypted,
		FileCount:    fileCount,
		BytesWritten: bytesWritten,
	}, nil
}

// countingWriter wraps another writer and counts bytes written.
type countingWriter struct {
	wrapped io.Writer
	count   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.wrapped.Write(p)
	c.count += int64(n)
	return n, err
}

// ValidateAgePublicKey validates that a string is a valid age public key.
func ValidateAgePublicKey(key string) error {
	if !strings.HasPrefix(key, "age1") {
		return fault.New(fault.KindValidation, "age public key must start with 'age1'")
	}

	if _, err := age.ParseX25519Recipient(key); err != nil {
		return fault.Wrap(err, fault.KindValidation, "invalid age public key")
	}

	return nil
}
