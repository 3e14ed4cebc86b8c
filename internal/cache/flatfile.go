package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ohtostado/duperscooper/internal/model"
)

// flatFileEntry is the JSON-serializable shape of one fingerprint cache
// row in the legacy document.
type flatFileEntry struct {
	Fingerprint string `json:"fingerprint"` // length-prefixed comma list, same wire shape as the SQLite backend
	Algorithm   string `json:"algorithm"`
	CreatedAt   int64  `json:"created_at"`
	AccessedAt  int64  `json:"accessed_at"`
	Path        string `json:"path,omitempty"`
	FileMtime   int64  `json:"file_mtime,omitempty"`
}

// flatFileAlbumEntry is the JSON-serializable shape of one album cache row.
type flatFileAlbumEntry struct {
	TrackCount       int     `json:"track_count"`
	AlbumIdentifier  string  `json:"album_identifier"`
	AlbumName        string  `json:"album_name"`
	ArtistName       string  `json:"artist_name"`
	TotalSize        int64   `json:"total_size"`
	AverageQuality   float64 `json:"average_quality"`
	QualityString    string  `json:"quality_string"`
	MixedIdentifiers bool    `json:"mixed_identifiers"`
	DirMtime         int64   `json:"dir_mtime"`
	CreatedAt        int64   `json:"created_at"`
	AccessedAt       int64   `json:"accessed_at"`
}

// flatFileDocument is the single structured document the legacy backend
// reads and rewrites wholesale on every mutation.
type flatFileDocument struct {
	Entries      map[string]flatFileEntry      `json:"entries"`
	AlbumEntries map[string]flatFileAlbumEntry `json:"album_entries"`
}

// FlatFileBackend is the legacy, single-writer cache backend: one JSON
// document read fully into memory and rewritten on every mutation. Any
// call that enters while another call on the same backend value is still
// in progress panics (see guardSingleWriter). The guard is an in-memory
// flag, so access to the same file from a separate process is not
// detected.
type FlatFileBackend struct {
	path string
	mu   sync.Mutex
	doc  flatFileDocument

	hits   int64
	misses int64

	inUse int32
}

// NewFlatFileBackend loads (or creates) the flat-file cache at path.
func NewFlatFileBackend(path string) (*FlatFileBackend, error) {
	doc, err := loadFlatFile(path)
	if err != nil {
		return nil, err
	}
	return &FlatFileBackend{path: path, doc: *doc}, nil
}

func loadFlatFile(path string) (*flatFileDocument, error) {
	doc := &flatFileDocument{
		Entries:      map[string]flatFileEntry{},
		AlbumEntries: map[string]flatFileAlbumEntry{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read flat-file cache: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse flat-file cache: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]flatFileEntry{}
	}
	if doc.AlbumEntries == nil {
		doc.AlbumEntries = map[string]flatFileAlbumEntry{}
	}
	return doc, nil
}

// guardSingleWriter panics if more than one goroutine is inside a
// FlatFileBackend call at once. The legacy backend is documented as
// single-writer only; per spec §9, an implementer must treat parallel
// access as a fatal configuration error rather than attempt to support it.
func (b *FlatFileBackend) guardSingleWriter() func() {
	if !atomic.CompareAndSwapInt32(&b.inUse, 0, 1) {
		panic("cache: flat-file backend accessed concurrently; the legacy backend is single-writer only")
	}
	return func() { atomic.StoreInt32(&b.inUse, 0) }
}

func (b *FlatFileBackend) Get(hash string) (model.Fingerprint, bool, error) {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.doc.Entries[hash]
	if !ok {
		atomic.AddInt64(&b.misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&b.hits, 1)

	entry.AccessedAt = time.Now().Unix()
	b.doc.Entries[hash] = entry

	fp, err := decodeFingerprint(entry.Fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry for %s: %w", hash, err)
	}
	return fp, true, nil
}

func (b *FlatFileBackend) Set(hash, path string, fp model.Fingerprint, algorithm string, mtime time.Time) error {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().Unix()
	existing, ok := b.doc.Entries[hash]
	created := now
	if ok {
		created = existing.CreatedAt
	}

	var mtimeUnix int64
	if !mtime.IsZero() {
		mtimeUnix = mtime.Unix()
	}

	b.doc.Entries[hash] = flatFileEntry{
		Fingerprint: encodeFingerprint(fp),
		Algorithm:   algorithm,
		CreatedAt:   created,
		AccessedAt:  now,
		Path:        path,
		FileMtime:   mtimeUnix,
	}
	return b.flush()
}

func (b *FlatFileBackend) GetAlbum(albumPath string) (*AlbumEntry, bool, error) {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, ok := b.doc.AlbumEntries[albumPath]
	if !ok {
		return nil, false, nil
	}
	raw.AccessedAt = time.Now().Unix()
	b.doc.AlbumEntries[albumPath] = raw

	return &AlbumEntry{
		AlbumPath:        albumPath,
		TrackCount:       raw.TrackCount,
		AlbumIdentifier:  raw.AlbumIdentifier,
		AlbumName:        raw.AlbumName,
		ArtistName:       raw.ArtistName,
		TotalSize:        raw.TotalSize,
		AverageQuality:   raw.AverageQuality,
		QualityString:    raw.QualityString,
		MixedIdentifiers: raw.MixedIdentifiers,
		DirMtime:         time.Unix(raw.DirMtime, 0),
		CreatedAt:        time.Unix(raw.CreatedAt, 0),
		AccessedAt:       time.Unix(raw.AccessedAt, 0),
	}, true, nil
}

func (b *FlatFileBackend) SetAlbum(entry AlbumEntry) error {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().Unix()
	existing, ok := b.doc.AlbumEntries[entry.AlbumPath]
	created := now
	if ok {
		created = existing.CreatedAt
	}

	b.doc.AlbumEntries[entry.AlbumPath] = flatFileAlbumEntry{
		TrackCount:       entry.TrackCount,
		AlbumIdentifier:  entry.AlbumIdentifier,
		AlbumName:        entry.AlbumName,
		ArtistName:       entry.ArtistName,
		TotalSize:        entry.TotalSize,
		AverageQuality:   entry.AverageQuality,
		QualityString:    entry.QualityString,
		MixedIdentifiers: entry.MixedIdentifiers,
		DirMtime:         entry.DirMtime.Unix(),
		CreatedAt:        created,
		AccessedAt:       now,
	}
	return b.flush()
}

func (b *FlatFileBackend) Stats() Stats {
	b.mu.Lock()
	size := int64(len(b.doc.Entries))
	b.mu.Unlock()

	return Stats{
		Hits:    atomic.LoadInt64(&b.hits),
		Misses:  atomic.LoadInt64(&b.misses),
		Size:    size,
		Backend: "flatfile",
	}
}

func (b *FlatFileBackend) Clear() error {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.doc.Entries = map[string]flatFileEntry{}
	b.doc.AlbumEntries = map[string]flatFileAlbumEntry{}
	return b.flush()
}

func (b *FlatFileBackend) CleanupOld(maxAge time.Duration) (int64, error) {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()
	var removed int64
	for h, e := range b.doc.Entries {
		if e.AccessedAt < cutoff {
			delete(b.doc.Entries, h)
			removed++
		}
	}
	for p, e := range b.doc.AlbumEntries {
		if e.AccessedAt < cutoff {
			delete(b.doc.AlbumEntries, p)
			removed++
		}
	}
	return removed, b.flush()
}

// MigrateLegacy always returns an error for the flat-file backend: it is
// itself the legacy format, so there is nothing to migrate into it.
func (b *FlatFileBackend) MigrateLegacy(legacyPath string) (int64, error) {
	return 0, fmt.Errorf("flat-file backend cannot migrate from another flat-file cache")
}

// VerifyConsistency scans every entry that recorded a path and mtime,
// reporting (not deleting) entries whose backing file is missing or has
// changed since it was cached.
func (b *FlatFileBackend) VerifyConsistency() (*ConsistencyReport, error) {
	defer b.guardSingleWriter()()
	b.mu.Lock()
	defer b.mu.Unlock()

	report := &ConsistencyReport{GeneratedAt: time.Now()}
	for _, e := range b.doc.Entries {
		report.TotalEntries++

		if e.Path == "" {
			report.VerifiedEntries++
			continue
		}

		info, statErr := os.Stat(e.Path)
		if statErr != nil {
			report.MissingEntries++
			continue
		}
		if e.FileMtime != 0 && info.ModTime().Unix() > e.FileMtime {
			report.StaleEntries++
			continue
		}
		report.VerifiedEntries++
	}
	return report, nil
}

func (b *FlatFileBackend) Close() error { return nil }

func (b *FlatFileBackend) flush() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flat-file cache: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write flat-file cache: %w", err)
	}
	return os.Rename(tmp, b.path)
}
