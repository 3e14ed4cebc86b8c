package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/model"
)

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path, 4)
	require.NoError(t, err)
	defer b.Close()

	fp := model.Fingerprint{1, 2, 3, 4}
	require.NoError(t, b.Set("deadbeef", "/music/a.flac", fp, "chromaprint", time.Unix(1700000000, 0)))

	got, ok, err := b.Get("deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fp, got)

	_, ok, err = b.Get("unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
	assert.Equal(t, "sqlite", stats.Backend)
}

func TestSQLiteBackendSetIsIdempotentUpToTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path, 2)
	require.NoError(t, err)
	defer b.Close()

	fp := model.Fingerprint{9, 8, 7}
	require.NoError(t, b.Set("hash1", "/music/a.flac", fp, "chromaprint", time.Unix(1700000000, 0)))
	got, ok, err := b.Get("hash1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Set("hash1", "/music/a.flac", fp, "chromaprint", time.Unix(1700000000, 0)))
	got2, ok, err := b.Get("hash1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got, got2)
}

func TestSQLiteBackendCleanupOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path, 2)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Set("stale", "/music/stale.flac", model.Fingerprint{1}, "chromaprint", time.Unix(1700000000, 0)))
	_, err = b.db.Exec(`UPDATE fingerprint_cache SET last_accessed = 0 WHERE file_hash = 'stale'`)
	require.NoError(t, err)

	n, err := b.CleanupOld(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := b.Get("stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteBackendClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path, 2)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Set("a", "/music/a.flac", model.Fingerprint{1}, "chromaprint", time.Unix(1700000000, 0)))
	require.NoError(t, b.Clear())

	stats := b.Stats()
	assert.Equal(t, int64(0), stats.Size)
}

func TestSQLiteBackendAlbumRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path, 2)
	require.NoError(t, err)
	defer b.Close()

	entry := AlbumEntry{
		AlbumPath:      "/music/Artist/Album",
		TrackCount:     10,
		AlbumName:      "Album",
		ArtistName:     "Artist",
		AverageQuality: 320,
		DirMtime:       time.Unix(1700000000, 0),
	}
	require.NoError(t, b.SetAlbum(entry))

	got, ok, err := b.GetAlbum("/music/Artist/Album")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, got.TrackCount)
	assert.Equal(t, "Album", got.AlbumName)
}

func TestFlatFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	b, err := NewFlatFileBackend(path)
	require.NoError(t, err)

	fp := model.Fingerprint{5, 6, 7}
	require.NoError(t, b.Set("hash", "/music/a.flac", fp, "chromaprint", time.Unix(1700000000, 0)))

	got, ok, err := b.Get("hash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fp, got)

	// Reopening from disk must see the same entry.
	b2, err := NewFlatFileBackend(path)
	require.NoError(t, err)
	got2, ok, err := b2.Get("hash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fp, got2)
}

func TestFlatFileBackendConcurrentAccessPanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	b, err := NewFlatFileBackend(path)
	require.NoError(t, err)

	release := b.guardSingleWriter()
	defer release()

	assert.Panics(t, func() {
		b.guardSingleWriter()
	})
}

func TestMigrateLegacyPreservesTimestamps(t *testing.T) {
	legacyPath := filepath.Join(t.TempDir(), "legacy.json")
	legacy, err := NewFlatFileBackend(legacyPath)
	require.NoError(t, err)
	require.NoError(t, legacy.Set("legacyhash", "/music/legacy.flac", model.Fingerprint{1, 2}, "chromaprint", time.Unix(1700000000, 0)))
	// Backdate the legacy entry so a migration that stamped "now" would be
	// distinguishable from one that carried the original timestamp over.
	e := legacy.doc.Entries["legacyhash"]
	e.CreatedAt = 1600000000
	legacy.doc.Entries["legacyhash"] = e
	require.NoError(t, legacy.flush())

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	sq, err := NewSQLiteBackend(dbPath, 2)
	require.NoError(t, err)
	defer sq.Close()

	n, err := sq.MigrateLegacy(legacyPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, ok, err := sq.Get("legacyhash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Fingerprint{1, 2}, got)

	var createdAt int64
	require.NoError(t, sq.db.QueryRow(`SELECT created_at FROM fingerprint_cache WHERE file_hash = 'legacyhash'`).Scan(&createdAt))
	assert.Equal(t, int64(1600000000), createdAt)
}

func TestSQLiteBackendVerifyConsistency(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	b, err := NewSQLiteBackend(dbPath, 2)
	require.NoError(t, err)
	defer b.Close()

	fresh := filepath.Join(dir, "fresh.flac")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))
	info, err := os.Stat(fresh)
	require.NoError(t, err)

	require.NoError(t, b.Set("fresh-hash", fresh, model.Fingerprint{1}, "chromaprint", info.ModTime()))
	require.NoError(t, b.Set("stale-hash", fresh, model.Fingerprint{2}, "chromaprint", info.ModTime().Add(-time.Hour)))
	require.NoError(t, b.Set("missing-hash", filepath.Join(dir, "gone.flac"), model.Fingerprint{3}, "chromaprint", time.Now()))

	report, err := b.VerifyConsistency()
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalEntries)
	assert.Equal(t, 1, report.VerifiedEntries)
	assert.Equal(t, 1, report.StaleEntries)
	assert.Equal(t, 1, report.MissingEntries)
	assert.InDelta(t, 100.0/3.0, report.IntegrityScore(), 0.01)
}

func TestFlatFileBackendVerifyConsistency(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFlatFileBackend(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)

	require.NoError(t, b.Set("missing-hash", filepath.Join(dir, "gone.flac"), model.Fingerprint{1}, "chromaprint", time.Now()))

	report, err := b.VerifyConsistency()
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, 1, report.MissingEntries)
	assert.Equal(t, 0.0, report.IntegrityScore())
}

func TestEncodeDecodeFingerprintRoundTrip(t *testing.T) {
	fp := model.Fingerprint{0, 1, 4294967295, 42}
	encoded := encodeFingerprint(fp)
	decoded, err := decodeFingerprint(encoded)
	require.NoError(t, err)
	assert.Equal(t, fp, decoded)
}

func TestEncodeDecodeEmptyFingerprint(t *testing.T) {
	encoded := encodeFingerprint(model.Fingerprint{})
	decoded, err := decodeFingerprint(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
