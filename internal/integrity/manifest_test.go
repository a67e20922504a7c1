package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soclog/internal/fault"
)

func writeArtifact(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func hexSum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestBuildRecordsFilesInInputOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)
	writeArtifact(t, fs, "/out/c.json", "large content here", mtime)
	writeArtifact(t, fs, "/out/a.json", "{}", mtime)
	writeArtifact(t, fs, "/out/b.json", "[1,2,3]", mtime)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewBuilder(fs, nil).Build([]string{"/out/c.json", "/out/a.json", "/out/b.json"}, "host1", &at)
	require.NoError(t, err)

	require.Len(t, m.Files, 3)
	assert.Equal(t, "c.json", m.Files[0].FileName)
	assert.Equal(t, "a.json", m.Files[1].FileName)
	assert.Equal(t, "b.json", m.Files[2].FileName)
}

func TestBuildFlattensPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "/deep/nested/dir/processes.json", "{}", time.Unix(0, 0))

	m, err := NewBuilder(fs, nil).Build([]string{"/deep/nested/dir/processes.json"}, "h", nil)
	require.NoError(t, err)

	require.Len(t, m.Files, 1)
	assert.Equal(t, "processes.json", m.Files[0].FileName)
	assert.Equal(t, m.Files[0].FileName, m.Files[0].RelativePath)
}

func TestBuildRecordFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2024, 3, 5, 10, 11, 12, 345678000, time.FixedZone("CET", 3600))
	writeArtifact(t, fs, "/out/a.json", "{\"x\":1}\n", mtime)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewBuilder(fs, nil).Build([]string{"/out/a.json"}, "host1", &at)
	require.NoError(t, err)

	rec := m.Files[0]
	assert.Equal(t, int64(8), rec.SizeBytes)
	assert.Equal(t, hexSum("{\"x\":1}\n"), rec.SHA256)
	assert.Equal(t, "2024-03-05T09:11:12.345678+00:00", rec.MtimeUTC)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", m.GeneratedAtUTC)
	assert.Equal(t, "host1", m.Host)
}

func TestBuildUsesClockWhenNoTimestamp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "/out/a.json", "{}", time.Unix(0, 0))

	fixed := time.Date(2025, 11, 16, 12, 34, 56, 0, time.FixedZone("EST", -5*3600))
	m, err := NewBuilder(fs, func() time.Time { return fixed }).Build([]string{"/out/a.json"}, "h", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-16T17:34:56+00:00", m.GeneratedAtUTC)
}

func TestBuildFailsOnMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "/out/a.json", "{}", time.Unix(0, 0))

	m, err := NewBuilder(fs, nil).Build([]string{"/out/a.json", "/out/missing.json"}, "h", nil)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, fault.KindIO, fault.KindOf(err))
}

func TestBuildEmptyInput(t *testing.T) {
	m, err := NewBuilder(afero.NewMemMapFs(), nil).Build(nil, "h", nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Files)
	assert.Empty(t, m.Files)
}

func TestBuildHashesFreshEachTime(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "/out/a.json", "one", time.Unix(0, 0))
	b := NewBuilder(fs, nil)

	first, err := b.Build([]string{"/out/a.json"}, "h", nil)
	require.NoError(t, err)

	writeArtifact(t, fs, "/out/a.json", "two", time.Unix(0, 0))
	second, err := b.Build([]string{"/out/a.json"}, "h", nil)
	require.NoError(t, err)

	assert.Equal(t, hexSum("one"), first.Files[0].SHA256)
	assert.Equal(t, hexSum("two"), second.Files[0].SHA256)
}

func TestFormatISO8601(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-01T00:00:00+00:00":        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-01-01T00:00:00.000001+00:00": time.Date(2024, 1, 1, 0, 0, 0, 1400, time.UTC),
		"2024-01-01T00:00:00.000002+00:00": time.Date(2024, 1, 1, 0, 0, 0, 1600, time.UTC),
		"2024-01-01T00:00:01+00:00":        time.Date(2024, 1, 1, 0, 0, 0, 999999700, time.UTC),
		"2024-01-01T00:00:00.500000+00:00": time.Date(2024, 1, 1, 0, 0, 0, 500000000, time.UTC),
		"2023-12-31T22:00:00+00:00":        time.Date(2024, 1, 1, 0, 0, 0, 400, time.FixedZone("", 2*3600)),
	}
	for want, in := range cases {
		assert.Equal(t, want, FormatISO8601(in))
	}
}
