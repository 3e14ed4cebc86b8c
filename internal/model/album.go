package model

import (
	"fmt"
	"sort"
)

// Album is a directory-level aggregate over its non-recursively scanned
// audio children.
type Album struct {
	Path     string
	Tracks   []*TrackRecord
	failures int // tracks whose fingerprinting failed; recorded, not fatal

	TotalSize         int64
	AverageQuality    float64
	AverageQualityStr string // rounded score followed by the "(avg)" suffix, see IsAverage

	AlbumIdentifier  string
	MixedIdentifiers bool
	AlbumName        string
	ArtistName       string
}

// IsAverage is always true for an Album's aggregate quality string. It
// reports as a flag what AverageQualityStr also states in its text: that
// string already ends in the "(avg)" suffix, and no presentation code in
// this module consults IsAverage.
func (a *Album) IsAverage() bool { return true }

// SortedTracks returns the album's tracks sorted by filename, the order
// the album matcher's fingerprint strategy pairs tracks by.
func (a *Album) SortedTracks() []*TrackRecord {
	out := make([]*TrackRecord, len(a.Tracks))
	copy(out, a.Tracks)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// IsCanonical reports whether the album has either an album identifier or
// both an album tag and an artist tag -- the matcher's canonical test.
func (a *Album) IsCanonical() bool {
	if a.AlbumIdentifier != "" {
		return true
	}
	return a.AlbumName != "" && a.ArtistName != ""
}

// RecordFailure increments the album's failed-track counter. The album
// remains scannable as long as at least one track succeeded.
func (a *Album) RecordFailure() { a.failures++ }

// Failures returns the number of tracks whose fingerprint could not be
// produced.
func (a *Album) Failures() int { return a.failures }

// Scannable reports whether at least one track fingerprinted successfully.
func (a *Album) Scannable() bool {
	for _, t := range a.Tracks {
		if !t.FingerprintFail {
			return true
		}
	}
	return false
}

// Build computes the aggregate fields (size, quality, identifier
// consensus) from Tracks. Call after all tracks have been appended.
func (a *Album) Build() {
	a.TotalSize = 0
	var qualitySum float64
	for _, t := range a.Tracks {
		a.TotalSize += t.Size
		qualitySum += t.QualityScore
	}
	if len(a.Tracks) > 0 {
		a.AverageQuality = qualitySum / float64(len(a.Tracks))
	}

	a.AlbumIdentifier, a.MixedIdentifiers = consensusIdentifier(a.Tracks)
	a.AlbumName = consensusNonEmpty(a.Tracks, func(t *TrackRecord) string { return t.Metadata.AlbumTag })
	a.ArtistName = consensusNonEmpty(a.Tracks, func(t *TrackRecord) string { return t.Metadata.ArtistTag })
	a.AverageQualityStr = formatAverageQuality(a.AverageQuality)
}

// formatAverageQuality renders an album's aggregate quality score with the
// "(avg)" suffix. Kept local to model rather than in internal/quality,
// which already imports model, to avoid an import cycle.
func formatAverageQuality(score float64) string {
	return fmt.Sprintf("%.0f (avg)", score)
}

// consensusIdentifier returns the album identifier if all tracks that have
// one agree, and whether more than one distinct non-empty identifier was
// observed (mixed-identifiers).
func consensusIdentifier(tracks []*TrackRecord) (string, bool) {
	seen := map[string]bool{}
	order := []string{}
	for _, t := range tracks {
		id := t.Metadata.AlbumIdentifier
		if id == "" {
			continue
		}
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	if len(order) == 0 {
		return "", false
	}
	if len(order) > 1 {
		return "", true
	}
	return order[0], false
}

// consensusNonEmpty returns the most-common non-empty value extracted by
// get, breaking ties by insertion order.
func consensusNonEmpty(tracks []*TrackRecord, get func(*TrackRecord) string) string {
	counts := map[string]int{}
	order := []string{}
	for _, t := range tracks {
		v := get(t)
		if v == "" {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}
	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}
