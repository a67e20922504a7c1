// Package integrity binds collected artifact files to a host and a point in
// time: it hashes them, records them in a canonical manifest, and can have
// the manifest signed by an external tool.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"soclog/internal/fault"
)

// chunkSize bounds how much of a file is held in memory while hashing.
const chunkSize = 8192

// SHA256File streams the file at path through SHA-256 and returns the
// lowercase hex digest.
func SHA256File(fs afero.Fs, path string) (string, error) {
	file, err := fs.Open(path)
	if err != nil {
		return "", fault.Wrap(err, fault.KindIO, "open file for hashing")
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return "", fault.Wrap(fmt.Errorf("read %s: %w", path, readErr), fault.KindIO, "hash file contents")
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
