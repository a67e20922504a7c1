package integrity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"soclog/internal/fault"
)

func TestWriteRoundTripScenario(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	writeArtifact(t, fs, "/out/a.json", "{\"x\":1}\n", mtime)
	writeArtifact(t, fs, "/out/b.json", "{}", mtime)

	at, err := time.Parse(time.RFC3339, "2024-01-01T00:00:00+00:00")
	require.NoError(t, err)

	m, err := NewBuilder(fs, nil).Build([]string{"/out/a.json", "/out/b.json"}, "host1", &at)
	require.NoError(t, err)
	require.NoError(t, NewWriter(fs).Write(m, "/out/manifest.json"))

	got, err := afero.ReadFile(fs, "/out/manifest.json")
	require.NoError(t, err)

	want := fmt.Sprintf(`{
  "files": [
    {
      "file_name": "a.json",
      "mtime_utc": "2023-12-31T23:00:00+00:00",
      "relative_path": "a.json",
      "sha256": "%s",
      "size_bytes": 8
    },
    {
      "file_name": "b.json",
      "mtime_utc": "2023-12-31T23:00:00+00:00",
      "relative_path": "b.json",
      "sha256": "%s",
      "size_bytes": 2
    }
  ],
  "generated_at_utc": "2024-01-01T00:00:00+00:00",
  "host": "host1"
}`, hexSum("{\"x\":1}\n"), hexSum("{}"))
	assert.Equal(t, want, string(got))

	parsed := gjson.ParseBytes(got)
	assert.Equal(t, "host1", parsed.Get("host").String())
	assert.Equal(t, int64(2), parsed.Get("files.#").Int())
}

func TestWriteIsDeterministic(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "/out/a.json", "alpha", time.Unix(1700000000, 0))
	writeArtifact(t, fs, "/out/b.json", "beta", time.Unix(1700000001, 0))
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	paths := []string{"/out/a.json", "/out/b.json"}

	b := NewBuilder(fs, nil)
	w := NewWriter(fs)

	first, err := b.Build(paths, "host1", &at)
	require.NoError(t, err)
	require.NoError(t, w.Write(first, "/out/one.json"))

	second, err := b.Build(paths, "host1", &at)
	require.NoError(t, err)
	require.NoError(t, w.Write(second, "/out/two.json"))

	one, err := afero.ReadFile(fs, "/out/one.json")
	require.NoError(t, err)
	two, err := afero.ReadFile(fs, "/out/two.json")
	require.NoError(t, err)
	assert.Equal(t, one, two)
}

func TestMarshalSortsKeysAndIsStable(t *testing.T) {
	m := &Manifest{
		Host:           "h",
		GeneratedAtUTC: "2024-01-01T00:00:00+00:00",
		Files: []FileRecord{{
			FileName:     "z.json",
			RelativePath: "z.json",
			SHA256:       strings.Repeat("a", 64),
			SizeBytes:    1,
			MtimeUTC:     "2024-01-01T00:00:00+00:00",
		}},
	}

	first, err := Marshal(m)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Marshal(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	out := string(first)
	assertOrdered(t, out, `"files"`, `"generated_at_utc"`, `"host"`)
	assertOrdered(t, out, `"file_name"`, `"mtime_utc"`, `"relative_path"`, `"sha256"`, `"size_bytes"`)
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func assertOrdered(t *testing.T, s string, keys ...string) {
	t.Helper()
	last := -1
	for _, k := range keys {
		idx := strings.Index(s, k)
		require.GreaterOrEqual(t, idx, 0, "missing %s", k)
		assert.Greater(t, idx, last, "%s out of order", k)
		last = idx
	}
}

func TestMarshalEmptyFilesIsArray(t *testing.T) {
	data, err := Marshal(&Manifest{Host: "h", GeneratedAtUTC: "2024-01-01T00:00:00+00:00"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"files": []`)
	require.NoError(t, ValidateManifestJSON(data))
}

func TestWriteRejectsInvalidDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := &Manifest{
		Host:           "h",
		GeneratedAtUTC: "2024-01-01T00:00:00+00:00",
		Files: []FileRecord{{
			FileName:     "a.json",
			RelativePath: "a.json",
			SHA256:       "",
			MtimeUTC:     "2024-01-01T00:00:00+00:00",
		}},
	}

	err := NewWriter(fs).Write(m, "/manifest.json")
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))

	exists, err := afero.Exists(fs, "/manifest.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteOverwritesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/manifest.json", []byte("stale"), 0o644))

	m := &Manifest{Host: "h", GeneratedAtUTC: "2024-01-01T00:00:00+00:00"}
	require.NoError(t, NewWriter(fs).Write(m, "/out/manifest.json"))

	got, err := afero.ReadFile(fs, "/out/manifest.json")
	require.NoError(t, err)
	assert.True(t, gjson.ValidBytes(got))

	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Host: "h", GeneratedAtUTC: "2024-01-01T00:00:00+00:00"}

	err := WriteManifest(m, filepath.Join(dir, "missing-dir", "manifest.json"))
	require.Error(t, err)
	assert.Equal(t, fault.KindIO, fault.KindOf(err))
}

func TestWriteRefusesReadOnlyTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/manifest.json", []byte("sealed"), 0o444))

	m := &Manifest{Host: "h", GeneratedAtUTC: "2024-01-01T00:00:00+00:00"}
	err := NewWriter(fs).Write(m, "/out/manifest.json")
	require.Error(t, err)
	assert.Equal(t, fault.KindIO, fault.KindOf(err))

	got, err := afero.ReadFile(fs, "/out/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "sealed", string(got))

	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteRefusesSymlinkTarget(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "elsewhere.json")
	require.NoError(t, os.WriteFile(dest, []byte("keep"), 0o644))
	link := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.Symlink(dest, link))

	m := &Manifest{Host: "h", GeneratedAtUTC: "2024-01-01T00:00:00+00:00"}
	err := WriteManifest(m, link)
	require.Error(t, err)
	assert.Equal(t, fault.KindIO, fault.KindOf(err))

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}

func TestWriteManifestOnDisk(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "processes.json")
	require.NoError(t, os.WriteFile(artifact, []byte(`{"processes":[]}`), 0o644))

	m, err := BuildManifest([]string{artifact}, "win10lab", nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "manifest.json")
	require.NoError(t, WriteManifest(m, target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
