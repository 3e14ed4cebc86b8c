// Package cache implements the persistent, thread-safe fingerprint and
// album cache described in spec §4.1: a content-hash-keyed store with two
// backends (a durable SQLite-backed default, and a legacy single-writer
// flat-file format), hit/miss counters, and age-based cleanup.
package cache

import (
	"time"

	"github.com/ohtostado/duperscooper/internal/model"
)

// Stats reports the cache's counters and identifies which backend
// produced them. Hit/miss counters are monotonic and reset per process.
type Stats struct {
	Hits    int64
	Misses  int64
	Size    int64
	Backend string
}

// Entry is one cache row: a fingerprint plus its bookkeeping timestamps.
type Entry struct {
	Hash        string
	Path        string // supplemented: source file path at the most recent Set
	Fingerprint model.Fingerprint
	Algorithm   string
	CreatedAt   time.Time
	AccessedAt  time.Time
	FileMtime   time.Time // supplemented: source file's mtime at cache time
}

// ConsistencyReport summarizes a verify pass over the fingerprint cache:
// how many entries' backing files are missing or have changed since they
// were cached.
type ConsistencyReport struct {
	GeneratedAt     time.Time
	TotalEntries    int
	VerifiedEntries int
	StaleEntries    int // backing file's mtime has advanced past the cached mtime
	MissingEntries  int // backing file no longer exists
}

// IntegrityScore returns the percentage of entries that are neither stale
// nor missing.
func (r *ConsistencyReport) IntegrityScore() float64 {
	if r.TotalEntries == 0 {
		return 100.0
	}
	return 100.0 * float64(r.VerifiedEntries) / float64(r.TotalEntries)
}

// AlbumEntry is the supplemented album-level cache row: the aggregate an
// Album scan produces, keyed by album path and guarded by the directory's
// mtime so an untouched album scan can skip per-track aggregation.
type AlbumEntry struct {
	AlbumPath        string
	TrackCount       int
	AlbumIdentifier  string
	AlbumName        string
	ArtistName       string
	TotalSize        int64
	AverageQuality   float64
	QualityString    string
	MixedIdentifiers bool
	DirMtime         time.Time
	CreatedAt        time.Time
	AccessedAt       time.Time
}

// Backend is the capability set every cache implementation exposes.
// Matching strategies and consumers only ever see this interface; the
// concrete backend is selected once at startup from AppConfig.Cache.
type Backend interface {
	Get(hash string) (model.Fingerprint, bool, error)
	Set(hash, path string, fp model.Fingerprint, algorithm string, mtime time.Time) error
	GetAlbum(albumPath string) (*AlbumEntry, bool, error)
	SetAlbum(entry AlbumEntry) error
	Stats() Stats
	Clear() error
	CleanupOld(maxAge time.Duration) (int64, error)
	MigrateLegacy(legacyPath string) (int64, error)
	VerifyConsistency() (*ConsistencyReport, error)
	Close() error
}
