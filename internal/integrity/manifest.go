package integrity

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"soclog/internal/fault"
)

const (
	isoSeconds = "2006-01-02T15:04:05-07:00"
	isoMicros  = "2006-01-02T15:04:05.000000-07:00"
)

// FileRecord describes one artifact file as it was when the manifest was built.
type FileRecord struct {
	FileName     string `json:"file_name"`
	MtimeUTC     string `json:"mtime_utc"`
	RelativePath string `json:"relative_path"`
	SHA256       string `json:"sha256"`
	SizeBytes    int64  `json:"size_bytes"`
}

// Manifest binds a set of artifact files to a host and a generation time.
type Manifest struct {
	Files          []FileRecord `json:"files"`
	GeneratedAtUTC string       `json:"generated_at_utc"`
	Host           string       `json:"host"`
}

// Builder assembles manifests from files on an afero filesystem.
type Builder struct {
	fs  afero.Fs
	now func() time.Time
}

// NewBuilder returns a Builder reading from fs. A nil now falls back to time.Now.
func NewBuilder(fs afero.Fs, now func() time.Time) *Builder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{fs: fs, now: now}
}

// BuildManifest builds a manifest over files on the local disk using the wall clock.
func BuildManifest(paths []string, host string, at *time.Time) (*Manifest, error) {
	return NewBuilder(nil, nil).Build(paths, host, at)
}

// Build stats and hashes every path in order and returns the manifest. The
// generation time is at when given, otherwise the builder's clock. Any
// missing or unreadable path fails the whole call.
func (b *Builder) Build(paths []string, host string, at *time.Time) (*Manifest, error) {
	generated := b.now()
	if at != nil {
		generated = *at
	}

	records := make([]FileRecord, 0, len(paths))
	for _, path := range paths {
		record, err := b.record(path)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return &Manifest{
		Files:          records,
		GeneratedAtUTC: FormatISO8601(generated),
		Host:           host,
	}, nil
}

func (b *Builder) record(path string) (FileRecord, error) {
	info, err := b.fs.Stat(path)
	if err != nil {
		return FileRecord{}, fault.Wrap(err, fault.KindIO, "stat artifact")
	}
	if info.IsDir() {
		return FileRecord{}, fault.Wrap(fmt.Errorf("%s is a directory", path), fault.KindIO, "stat artifact")
	}

	digest, err := SHA256File(b.fs, path)
	if err != nil {
		return FileRecord{}, err
	}

	// Only the base name is kept; the manifest describes a flat directory.
	name := filepath.Base(path)
	return FileRecord{
		FileName:     name,
		MtimeUTC:     FormatISO8601(info.ModTime()),
		RelativePath: name,
		SHA256:       digest,
		SizeBytes:    info.Size(),
	}, nil
}

// FormatISO8601 renders t in UTC with an explicit +00:00 offset. Sub-second
// precision is rounded to the nearest microsecond and printed only when
// non-zero.
func FormatISO8601(t time.Time) string {
	t = t.UTC().Round(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(isoSeconds)
	}
	return t.Format(isoMicros)
}
