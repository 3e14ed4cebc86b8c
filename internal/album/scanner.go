// Package album builds Album aggregates (spec §4.6): directory-level
// records with tag consensus, fingerprint reuse via the cache, and a
// failure-tolerant build that keeps an album scannable as long as at
// least one track succeeded.
package album

import (
	"context"
	"os"

	"github.com/ohtostado/duperscooper/internal/cache"
	"github.com/ohtostado/duperscooper/internal/model"
	"github.com/ohtostado/duperscooper/internal/scanner"
)

// Scanner builds Album records from discovered album directories.
type Scanner struct {
	Tracks *scanner.TrackScanner
	Cache  cache.Backend // optional: the supplemented album-level cache
}

// ScanAlbum builds one Album from dir's direct audio children.
func (s *Scanner) ScanAlbum(ctx context.Context, dir string) (*model.Album, error) {
	children, err := scanner.AlbumChildren(dir)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, nil
	}

	if s.Cache != nil {
		if entry, ok := s.CachedAlbum(dir); ok && entry.TrackCount == len(children) {
			return albumFromCache(dir, children, entry), nil
		}
	}

	records, err := s.Tracks.Scan(ctx, children)
	if err != nil {
		return nil, err
	}

	alb := &model.Album{Path: dir, Tracks: records}
	for i := 0; i < len(children)-len(records); i++ {
		alb.RecordFailure()
	}
	alb.Build()

	if s.Cache != nil {
		s.writeAlbumCache(dir, alb)
	}

	return alb, nil
}

// ScanAll builds Album records for every album directory discovered under
// root, skipping directories that yield no scannable album.
func (s *Scanner) ScanAll(ctx context.Context, root string) ([]*model.Album, error) {
	dirs, err := scanner.DiscoverAlbumDirs(root)
	if err != nil {
		return nil, err
	}

	var albums []*model.Album
	for _, dir := range dirs {
		alb, err := s.ScanAlbum(ctx, dir)
		if err != nil {
			return albums, err
		}
		if alb != nil && alb.Scannable() {
			albums = append(albums, alb)
		}
	}
	return albums, nil
}

// CachedAlbum returns the cached album aggregate if dir's cached mtime
// guard still matches the directory's current mtime, so a repeat scan of
// an untouched album can skip per-track aggregation entirely.
func (s *Scanner) CachedAlbum(dir string) (*cache.AlbumEntry, bool) {
	if s.Cache == nil {
		return nil, false
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, false
	}

	entry, ok, err := s.Cache.GetAlbum(dir)
	if err != nil || !ok {
		return nil, false
	}
	// Both backends store the directory mtime in whole seconds.
	if entry.DirMtime.Unix() != info.ModTime().Unix() {
		return nil, false
	}
	return entry, true
}

// albumFromCache reconstructs an Album's aggregate fields from a cache hit
// without re-scanning or re-fingerprinting its tracks. The album-level cache
// stores aggregates only, not per-track fingerprints, so reconstructed
// tracks carry just their path: the fingerprint strategy finds no
// similarity for them (grouping.Similarity on a nil fingerprint reports
// ok=false) and simply skips them rather than matching incorrectly, while
// the identifier strategy -- which only needs AlbumIdentifier and track
// count -- matches them normally.
func albumFromCache(dir string, children []string, entry *cache.AlbumEntry) *model.Album {
	tracks := make([]*model.TrackRecord, len(children))
	for i, p := range children {
		tracks[i] = &model.TrackRecord{Path: p}
	}
	return &model.Album{
		Path:              dir,
		Tracks:            tracks,
		TotalSize:         entry.TotalSize,
		AverageQuality:    entry.AverageQuality,
		AverageQualityStr: entry.QualityString,
		AlbumIdentifier:   entry.AlbumIdentifier,
		MixedIdentifiers:  entry.MixedIdentifiers,
		AlbumName:         entry.AlbumName,
		ArtistName:        entry.ArtistName,
	}
}

func (s *Scanner) writeAlbumCache(dir string, alb *model.Album) {
	info, err := os.Stat(dir)
	if err != nil {
		return
	}
	_ = s.Cache.SetAlbum(cache.AlbumEntry{
		AlbumPath:        dir,
		TrackCount:       len(alb.Tracks),
		AlbumIdentifier:  alb.AlbumIdentifier,
		AlbumName:        alb.AlbumName,
		ArtistName:       alb.ArtistName,
		TotalSize:        alb.TotalSize,
		AverageQuality:   alb.AverageQuality,
		QualityString:    alb.AverageQualityStr,
		MixedIdentifiers: alb.MixedIdentifiers,
		DirMtime:         info.ModTime(),
	})
}
