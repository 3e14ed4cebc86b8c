package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/cache"
	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/fingerprint"
	"github.com/ohtostado/duperscooper/internal/utils"
)

func writeFakeExecutable(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executable script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestDiscoverFiltersBySupportedExtensionAndSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.flac"), make([]byte, 2*1024*1024), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp3"), make([]byte, 100), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), make([]byte, 2*1024*1024), 0644))

	found, err := Discover(dir, 1024*1024)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Contains(t, found[0], "a.flac")
}

func TestDiscoverZeroMinSizeDisablesFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp3"), make([]byte, 10), 0644))

	found, err := Discover(dir, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestDiscoverAlbumDirs(t *testing.T) {
	root := t.TempDir()
	albumA := filepath.Join(root, "Artist", "AlbumA")
	albumB := filepath.Join(root, "Artist", "AlbumB")
	require.NoError(t, os.MkdirAll(albumA, 0755))
	require.NoError(t, os.MkdirAll(albumB, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(albumA, "01.flac"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(albumB, "01.flac"), []byte("x"), 0644))

	dirs, err := DiscoverAlbumDirs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{albumA, albumB}, dirs)
}

func TestTrackScannerCacheHitAvoidsFingerprinterInvocation(t *testing.T) {
	dir := t.TempDir()
	trackPath := filepath.Join(dir, "track.flac")
	require.NoError(t, os.WriteFile(trackPath, []byte("audio bytes"), 0644))

	// A fingerprinter that fails loudly if invoked: the cache hit must
	// short-circuit before this ever runs.
	toolPath := writeFakeExecutable(t, "fpcalc", "#!/bin/sh\necho 'should not run' >&2\nexit 1\n")
	probePath := writeFakeExecutable(t, "probe", "#!/bin/sh\necho 'codec=flac'\necho 'sample_rate=44100'\necho 'bit_depth=16'\necho 'lossless=1'\n")

	c, err := cache.NewSQLiteBackend(filepath.Join(dir, "cache.db"), 2)
	require.NoError(t, err)
	defer c.Close()

	hash, err := utils.SHA256File(trackPath)
	require.NoError(t, err)
	require.NoError(t, c.Set(hash, trackPath, []uint32{1, 2, 3}, "chromaprint", time.Now()))

	s := &TrackScanner{
		Tool:    fingerprint.NewTool(toolPath, time.Second),
		Probe:   fingerprint.NewProbe(probePath, time.Second),
		Cache:   c,
		Workers: 2,
	}

	records, err := s.Scan(context.Background(), []string{trackPath})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32(records[0].Fingerprint))
}

func TestTrackScannerOrdersOutputByInputOrderUnderParallelism(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".flac")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		paths = append(paths, p)
	}

	toolPath := writeFakeExecutable(t, "fpcalc", "#!/bin/sh\n# vary latency so completion order differs from input order\nsleep 0.0$(($$ % 3 + 1))\necho 'FINGERPRINT=1,2,3'\n")
	probePath := writeFakeExecutable(t, "probe", "#!/bin/sh\necho 'codec=mp3'\necho 'bitrate=320000'\n")

	s := &TrackScanner{
		Tool:    fingerprint.NewTool(toolPath, 2*time.Second),
		Probe:   fingerprint.NewProbe(probePath, 2*time.Second),
		Workers: 4,
	}

	records, err := s.Scan(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, records, len(paths))
	for i, rec := range records {
		assert.Equal(t, paths[i], rec.Path)
	}
}

func TestTrackScannerExcludesFailedFingerprintsFromOutput(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.flac")
	bad := filepath.Join(dir, "bad.flac")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("y"), 0644))

	toolPath := writeFakeExecutable(t, "fpcalc", "#!/bin/sh\ncase \"$2\" in\n  *bad*) exit 1;;\n  *) echo 'FINGERPRINT=1,2,3';;\nesac\n")
	probePath := writeFakeExecutable(t, "probe", "#!/bin/sh\necho 'codec=mp3'\necho 'bitrate=320000'\n")

	collector := &errs.Collector{}
	s := &TrackScanner{
		Tool:      fingerprint.NewTool(toolPath, time.Second),
		Probe:     fingerprint.NewProbe(probePath, time.Second),
		Workers:   2,
		Collector: collector,
	}

	records, err := s.Scan(context.Background(), []string{good, bad})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, good, records[0].Path)
	assert.EqualValues(t, 1, s.Progress(2).Errors)

	require.Equal(t, 1, collector.Count())
	assert.Equal(t, bad, collector.All()[0].Path)
	assert.Equal(t, errs.CategoryPerFile, collector.All()[0].Category)
}
