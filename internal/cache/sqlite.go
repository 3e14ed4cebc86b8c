package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ohtostado/duperscooper/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fingerprint_cache (
	file_hash    TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	algorithm    TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	file_mtime   INTEGER,
	source_path  TEXT
);
CREATE INDEX IF NOT EXISTS idx_fingerprint_last_accessed
	ON fingerprint_cache(last_accessed);

CREATE TABLE IF NOT EXISTS album_cache (
	album_path        TEXT PRIMARY KEY,
	track_count       INTEGER NOT NULL,
	album_identifier  TEXT,
	album_name        TEXT,
	artist_name       TEXT,
	total_size        INTEGER NOT NULL,
	average_quality   REAL NOT NULL,
	quality_string    TEXT NOT NULL,
	mixed_identifiers INTEGER NOT NULL,
	dir_mtime         INTEGER NOT NULL,
	created_at        INTEGER NOT NULL,
	last_accessed     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_album_last_accessed
	ON album_cache(last_accessed);
`

// SQLiteBackend is the durable, default cache backend: a single SQLite
// file in WAL mode, one connection pooled per worker plus one writer, with
// PRAGMA tuning chosen for concurrent reads during writes.
type SQLiteBackend struct {
	db   *sql.DB
	path string

	hits   int64
	misses int64

	writeMu sync.Mutex // serializes writers; readers proceed concurrently via WAL
}

// NewSQLiteBackend opens (creating if absent) the SQLite cache at path,
// enabling WAL mode and the concurrency-friendly PRAGMAs, then ensures the
// schema exists.
func NewSQLiteBackend(path string, workers int) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=30000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if workers < 1 {
		workers = 1
	}
	db.SetMaxOpenConns(workers + 1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Get(hash string) (model.Fingerprint, bool, error) {
	var raw string
	err := b.db.QueryRow(
		`SELECT fingerprint FROM fingerprint_cache WHERE file_hash = ?`, hash,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		atomic.AddInt64(&b.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}

	atomic.AddInt64(&b.hits, 1)

	// last-access touch is best-effort; a failure here must not fail Get.
	_, _ = b.db.Exec(`UPDATE fingerprint_cache SET last_accessed = ? WHERE file_hash = ?`, time.Now().Unix(), hash)

	fp, err := decodeFingerprint(raw)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry for %s: %w", hash, err)
	}
	return fp, true, nil
}

func (b *SQLiteBackend) Set(hash, path string, fp model.Fingerprint, algorithm string, mtime time.Time) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	now := time.Now().Unix()
	encoded := encodeFingerprint(fp)

	var mtimeUnix interface{}
	if !mtime.IsZero() {
		mtimeUnix = mtime.Unix()
	}

	_, err := b.db.Exec(`
		INSERT INTO fingerprint_cache (file_hash, fingerprint, algorithm, created_at, last_accessed, file_mtime, source_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			algorithm = excluded.algorithm,
			last_accessed = excluded.last_accessed,
			file_mtime = excluded.file_mtime,
			source_path = excluded.source_path
	`, hash, encoded, algorithm, now, now, mtimeUnix, path)
	if err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) GetAlbum(albumPath string) (*AlbumEntry, bool, error) {
	row := b.db.QueryRow(`
		SELECT track_count, album_identifier, album_name, artist_name, total_size,
		       average_quality, quality_string, mixed_identifiers, dir_mtime, created_at, last_accessed
		FROM album_cache WHERE album_path = ?
	`, albumPath)

	var (
		entry                                      AlbumEntry
		albumIdentifier, albumName, artistName     sql.NullString
		mixed                                      int
		dirMtime, createdAt, accessedAt            int64
	)
	err := row.Scan(&entry.TrackCount, &albumIdentifier, &albumName, &artistName,
		&entry.TotalSize, &entry.AverageQuality, &entry.QualityString, &mixed,
		&dirMtime, &createdAt, &accessedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("album cache get failed: %w", err)
	}

	entry.AlbumPath = albumPath
	entry.AlbumIdentifier = albumIdentifier.String
	entry.AlbumName = albumName.String
	entry.ArtistName = artistName.String
	entry.MixedIdentifiers = mixed != 0
	entry.DirMtime = time.Unix(dirMtime, 0)
	entry.CreatedAt = time.Unix(createdAt, 0)
	entry.AccessedAt = time.Unix(accessedAt, 0)

	_, _ = b.db.Exec(`UPDATE album_cache SET last_accessed = ? WHERE album_path = ?`, time.Now().Unix(), albumPath)

	return &entry, true, nil
}

func (b *SQLiteBackend) SetAlbum(entry AlbumEntry) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	now := time.Now().Unix()
	_, err := b.db.Exec(`
		INSERT INTO album_cache (
			album_path, track_count, album_identifier, album_name, artist_name,
			total_size, average_quality, quality_string, mixed_identifiers,
			dir_mtime, created_at, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(album_path) DO UPDATE SET
			track_count = excluded.track_count,
			album_identifier = excluded.album_identifier,
			album_name = excluded.album_name,
			artist_name = excluded.artist_name,
			total_size = excluded.total_size,
			average_quality = excluded.average_quality,
			quality_string = excluded.quality_string,
			mixed_identifiers = excluded.mixed_identifiers,
			dir_mtime = excluded.dir_mtime,
			last_accessed = excluded.last_accessed
	`, entry.AlbumPath, entry.TrackCount, entry.AlbumIdentifier, entry.AlbumName, entry.ArtistName,
		entry.TotalSize, entry.AverageQuality, entry.QualityString, boolToInt(entry.MixedIdentifiers),
		entry.DirMtime.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("album cache set failed: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Stats() Stats {
	var size int64
	_ = b.db.QueryRow(`SELECT COUNT(*) FROM fingerprint_cache`).Scan(&size)

	return Stats{
		Hits:    atomic.LoadInt64(&b.hits),
		Misses:  atomic.LoadInt64(&b.misses),
		Size:    size,
		Backend: "sqlite",
	}
}

func (b *SQLiteBackend) Clear() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := b.db.Exec(`DELETE FROM fingerprint_cache`); err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}
	if _, err := b.db.Exec(`DELETE FROM album_cache`); err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) CleanupOld(maxAge time.Duration) (int64, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := b.db.Exec(`DELETE FROM fingerprint_cache WHERE last_accessed < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache cleanup failed: %w", err)
	}
	n, _ := res.RowsAffected()

	res2, err := b.db.Exec(`DELETE FROM album_cache WHERE last_accessed < ?`, cutoff)
	if err != nil {
		return n, fmt.Errorf("album cache cleanup failed: %w", err)
	}
	n2, _ := res2.RowsAffected()

	return n + n2, nil
}

// MigrateLegacy one-shot imports entries from a prior flat-file cache,
// preserving timestamps where present.
func (b *SQLiteBackend) MigrateLegacy(legacyPath string) (int64, error) {
	legacy, err := loadFlatFile(legacyPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy cache: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO fingerprint_cache (file_hash, fingerprint, algorithm, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var migrated int64
	for hash, entry := range legacy.Entries {
		created := entry.CreatedAt
		accessed := entry.AccessedAt
		if created == 0 {
			created = time.Now().Unix()
		}
		if accessed == 0 {
			accessed = created
		}
		res, err := stmt.Exec(hash, entry.Fingerprint, entry.Algorithm, created, accessed)
		if err != nil {
			return migrated, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			migrated++
		}
	}

	if err := tx.Commit(); err != nil {
		return migrated, err
	}
	return migrated, nil
}

// VerifyConsistency scans every fingerprint cache entry that recorded a
// source path and mtime, reporting (not deleting) entries whose backing
// file is missing or has changed since it was cached. Entries migrated
// from the legacy backend or never touched by Set's path/mtime columns are
// counted toward TotalEntries but cannot be classified, so they count as
// verified rather than silently dropped.
func (b *SQLiteBackend) VerifyConsistency() (*ConsistencyReport, error) {
	rows, err := b.db.Query(`SELECT source_path, file_mtime FROM fingerprint_cache`)
	if err != nil {
		return nil, fmt.Errorf("verify query failed: %w", err)
	}
	defer rows.Close()

	report := &ConsistencyReport{GeneratedAt: time.Now()}
	for rows.Next() {
		var path sql.NullString
		var mtime sql.NullInt64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("verify scan failed: %w", err)
		}
		report.TotalEntries++

		if !path.Valid || path.String == "" {
			report.VerifiedEntries++
			continue
		}

		info, statErr := os.Stat(path.String)
		if statErr != nil {
			report.MissingEntries++
			continue
		}
		if mtime.Valid && info.ModTime().Unix() > mtime.Int64 {
			report.StaleEntries++
			continue
		}
		report.VerifiedEntries++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verify iteration failed: %w", err)
	}
	return report, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeFingerprint stores a fingerprint as a length-prefixed
// comma-separated integer list, per spec §3's cache entry definition.
func encodeFingerprint(fp model.Fingerprint) string {
	parts := make([]string, len(fp))
	for i, v := range fp {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return fmt.Sprintf("%d:%s", len(fp), strings.Join(parts, ","))
}

func decodeFingerprint(raw string) (model.Fingerprint, error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return nil, fmt.Errorf("missing length prefix")
	}
	length, err := strconv.Atoi(raw[:idx])
	if err != nil {
		return nil, fmt.Errorf("invalid length prefix: %w", err)
	}
	body := raw[idx+1:]
	if length == 0 {
		return model.Fingerprint{}, nil
	}
	parts := strings.Split(body, ",")
	if len(parts) != length {
		return nil, fmt.Errorf("length prefix %d does not match %d values", length, len(parts))
	}
	fp := make(model.Fingerprint, length)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fingerprint integer %q: %w", p, err)
		}
		fp[i] = uint32(v)
	}
	return fp, nil
}
