// Package apply implements scan-result serialization and the apply
// pipeline (spec §4.9, §6): loading a serialized scan in either of two
// shapes, evaluating rules per group, and producing a deletion report for
// dry-run or execute.
package apply

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ohtostado/duperscooper/internal/model"
	"github.com/ohtostado/duperscooper/internal/rules"
)

// Mode distinguishes track-level from album-level scan results.
type Mode string

const (
	ModeTrack Mode = "track"
	ModeAlbum Mode = "album"
)

// SerializedItem is one group member as carried through serialization:
// every field the rules engine's field projection (spec §4.9) needs,
// sourced at scan time so the apply pipeline never needs to re-open the
// original TrackRecord or Album.
type SerializedItem struct {
	Path              string  `json:"path"`
	Size              int64   `json:"size"`
	QualityInfo       string  `json:"quality_info"`
	QualityScore      float64 `json:"quality_score"`
	SimilarityToBest  float64 `json:"similarity_to_best"`
	IsBest            bool    `json:"is_best"`
	RecommendedAction string  `json:"recommended_action"`
	MatchPercentage   float64 `json:"match_percentage,omitempty"`
	MatchMethod       string  `json:"match_method,omitempty"`
	Format            string  `json:"format,omitempty"`
	Codec             string  `json:"codec,omitempty"`
	Bitrate           int     `json:"bitrate,omitempty"`
	SampleRate        int     `json:"sample_rate,omitempty"`
	BitDepth          int     `json:"bit_depth,omitempty"`
	IsLossless        bool    `json:"is_lossless,omitempty"`
	TrackCount        int     `json:"track_count,omitempty"`
	AlbumIdentifier   string  `json:"album_identifier,omitempty"`
	AlbumName         string  `json:"album_name,omitempty"`
	ArtistName        string  `json:"artist_name,omitempty"`
}

// Projection reconstructs a rules.Projection from this item, omitting
// every field this item never had a value for so absent-field semantics
// apply identically to a freshly-scanned item.
func (it SerializedItem) Projection(mode Mode) rules.Projection {
	values := map[string]interface{}{
		FieldKeyPath:             it.Path,
		FieldKeyIsBest:           it.IsBest,
		FieldKeyQualityScore:     it.QualityScore,
		FieldKeySimilarityToBest: it.SimilarityToBest,
	}
	if it.MatchMethod != "" {
		values[FieldKeyMatchMethod] = it.MatchMethod
	}
	if it.Format != "" {
		values[FieldKeyFormat] = it.Format
		values[FieldKeyCodec] = it.Codec
		values[FieldKeyIsLossless] = it.IsLossless
	}
	if it.Size > 0 {
		values[FieldKeyFileSize] = float64(it.Size)
	}
	if it.Bitrate > 0 {
		values[FieldKeyBitrate] = float64(it.Bitrate)
	}
	if it.SampleRate > 0 {
		values[FieldKeySampleRate] = float64(it.SampleRate)
	}
	if it.BitDepth > 0 {
		values[FieldKeyBitDepth] = float64(it.BitDepth)
	}
	if mode == ModeAlbum {
		values[FieldKeyMatchPercentage] = it.MatchPercentage
		if it.TrackCount > 0 {
			values[FieldKeyTrackCount] = float64(it.TrackCount)
		}
		if it.AlbumIdentifier != "" {
			values[FieldKeyAlbumIdentifier] = it.AlbumIdentifier
		}
		if it.AlbumName != "" {
			values[FieldKeyAlbumName] = it.AlbumName
		}
		if it.ArtistName != "" {
			values[FieldKeyArtistName] = it.ArtistName
		}
	}
	return rules.NewProjection(values)
}

// Field key aliases matching the rules package's exported field name
// constants, kept local so this file reads without an import alias on
// every line.
const (
	FieldKeyPath             = rules.FieldPath
	FieldKeyIsBest           = rules.FieldIsBest
	FieldKeyQualityScore     = rules.FieldQualityScore
	FieldKeyFormat           = rules.FieldFormat
	FieldKeyCodec            = rules.FieldCodec
	FieldKeyBitrate          = rules.FieldBitrate
	FieldKeySampleRate       = rules.FieldSampleRate
	FieldKeyBitDepth         = rules.FieldBitDepth
	FieldKeyIsLossless       = rules.FieldIsLossless
	FieldKeyFileSize         = rules.FieldFileSize
	FieldKeySimilarityToBest = rules.FieldSimilarityToBest
	FieldKeyMatchPercentage  = rules.FieldMatchPercentage
	FieldKeyMatchMethod      = rules.FieldMatchMethod
	FieldKeyTrackCount       = rules.FieldTrackCount
	FieldKeyAlbumIdentifier  = rules.FieldAlbumIdentifier
	FieldKeyAlbumName        = rules.FieldAlbumName
	FieldKeyArtistName       = rules.FieldArtistName
)

// SerializedGroup is one duplicate group as carried through serialization.
type SerializedGroup struct {
	GroupID       string           `json:"group_id"`
	MatchedAlbum  string           `json:"matched_album,omitempty"`
	MatchedArtist string           `json:"matched_artist,omitempty"`
	Items         []SerializedItem `json:"items"`
}

// ScanResult is the record-oriented serialization shape (spec §6); the
// flat tabular shape round-trips through the same struct via ToFlatCSV /
// FromFlatCSV.
type ScanResult struct {
	Mode            Mode              `json:"mode"`
	Groups          []SerializedGroup `json:"groups"`
	TotalGroups     int               `json:"total_groups"`
	TotalDuplicates int               `json:"total_duplicates"`
}

// BuildScanResult converts matcher/grouper output into a ScanResult,
// pulling the rule-relevant track or album fields in from the lookup
// tables the scanner produced them in.
func BuildScanResult(mode Mode, groups []model.Group, tracks map[string]*model.TrackRecord, albums map[string]*model.Album) ScanResult {
	result := ScanResult{Mode: mode, TotalGroups: len(groups)}

	for _, g := range groups {
		sg := SerializedGroup{GroupID: g.ID}
		if best, ok := g.Best(); ok {
			sg.MatchedAlbum = best.MatchedAlbum
			sg.MatchedArtist = best.MatchedArtist
		}
		for _, m := range g.Items {
			sg.Items = append(sg.Items, buildItem(mode, m, tracks, albums))
			if !m.IsBest {
				result.TotalDuplicates++
			}
		}
		result.Groups = append(result.Groups, sg)
	}
	return result
}

func buildItem(mode Mode, m model.Member, tracks map[string]*model.TrackRecord, albums map[string]*model.Album) SerializedItem {
	it := SerializedItem{
		Path:              m.Path,
		QualityInfo:       m.QualityString,
		QualityScore:      m.QualityScore,
		SimilarityToBest:  m.SimilarityToBest,
		IsBest:            m.IsBest,
		RecommendedAction: string(m.RecommendedAction),
		MatchPercentage:   m.Confidence,
		MatchMethod:       m.MatchMethod,
		AlbumName:         m.MatchedAlbum,
		ArtistName:        m.MatchedArtist,
	}

	if mode == ModeTrack {
		if t, ok := tracks[m.Path]; ok {
			it.Size = t.Size
			it.Format = t.Metadata.Codec
			it.Codec = t.Metadata.Codec
			it.SampleRate = t.Metadata.SampleRate
			it.IsLossless = t.Metadata.Lossless
			if t.Metadata.HasBitrate {
				it.Bitrate = t.Metadata.Bitrate
			}
			if t.Metadata.HasBitDepth {
				it.BitDepth = t.Metadata.BitDepth
			}
		}
	} else if a, ok := albums[m.Path]; ok {
		it.Size = a.TotalSize
		it.TrackCount = len(a.Tracks)
		it.AlbumIdentifier = a.AlbumIdentifier
		// An album-mode item's own tags, not the group's inherited
		// matched_album/matched_artist -- the rules engine field
		// projection and the group's display fields are kept distinct.
		it.AlbumName = a.AlbumName
		it.ArtistName = a.ArtistName
	}
	return it
}

// ToJSON renders the record-oriented shape.
func (r ScanResult) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan result: %w", err)
	}
	return data, nil
}

// FromJSON parses the record-oriented shape.
func FromJSON(data []byte) (*ScanResult, error) {
	var r ScanResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return &r, nil
}

var flatColumns = []string{
	"group_id", "matched_album", "matched_artist", "path", "size", "quality_info",
	"quality_score", "similarity_to_best", "is_best", "recommended_action",
	"match_percentage", "match_method", "format", "codec", "bitrate", "sample_rate",
	"bit_depth", "is_lossless", "track_count", "album_identifier", "album_name", "artist_name",
}

// ToFlatCSV renders the flat tabular shape: one row per item, with the
// group id and, for album mode, matched album/artist repeated on every
// row of that group.
func (r ScanResult) ToFlatCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(flatColumns); err != nil {
		return nil, err
	}
	for _, g := range r.Groups {
		for _, it := range g.Items {
			row := []string{
				g.GroupID, g.MatchedAlbum, g.MatchedArtist, it.Path,
				strconv.FormatInt(it.Size, 10), it.QualityInfo,
				strconv.FormatFloat(it.QualityScore, 'f', -1, 64),
				strconv.FormatFloat(it.SimilarityToBest, 'f', -1, 64),
				strconv.FormatBool(it.IsBest), it.RecommendedAction,
				strconv.FormatFloat(it.MatchPercentage, 'f', -1, 64), it.MatchMethod,
				it.Format, it.Codec,
				strconv.Itoa(it.Bitrate), strconv.Itoa(it.SampleRate), strconv.Itoa(it.BitDepth),
				strconv.FormatBool(it.IsLossless), strconv.Itoa(it.TrackCount),
				it.AlbumIdentifier, it.AlbumName, it.ArtistName,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromFlatCSV parses the flat tabular shape, regrouping rows back into
// groups by group_id in first-seen order and auto-detecting mode from
// whether any row carries album-only fields.
func FromFlatCSV(data []byte) (*ScanResult, error) {
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse flat scan result: %w", err)
	}
	if len(rows) == 0 {
		return &ScanResult{}, nil
	}

	header := rows[0]
	idx := map[string]int{}
	for i, col := range header {
		idx[col] = i
	}

	result := &ScanResult{}
	groupIdx := map[string]int{}
	sawAlbumField := false

	for _, row := range rows[1:] {
		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}

		groupID := get("group_id")
		gi, ok := groupIdx[groupID]
		if !ok {
			gi = len(result.Groups)
			groupIdx[groupID] = gi
			result.Groups = append(result.Groups, SerializedGroup{
				GroupID:       groupID,
				MatchedAlbum:  get("matched_album"),
				MatchedArtist: get("matched_artist"),
			})
			result.TotalGroups++
		}

		it := SerializedItem{
			Path:              get("path"),
			Size:              parseInt64(get("size")),
			QualityInfo:       get("quality_info"),
			QualityScore:      parseFloat(get("quality_score")),
			SimilarityToBest:  parseFloat(get("similarity_to_best")),
			IsBest:            get("is_best") == "true",
			RecommendedAction: get("recommended_action"),
			MatchPercentage:   parseFloat(get("match_percentage")),
			MatchMethod:       get("match_method"),
			Format:            get("format"),
			Codec:             get("codec"),
			Bitrate:           int(parseInt64(get("bitrate"))),
			SampleRate:        int(parseInt64(get("sample_rate"))),
			BitDepth:          int(parseInt64(get("bit_depth"))),
			IsLossless:        get("is_lossless") == "true",
			TrackCount:        int(parseInt64(get("track_count"))),
			AlbumIdentifier:   get("album_identifier"),
			AlbumName:         get("album_name"),
			ArtistName:        get("artist_name"),
		}
		if it.TrackCount > 0 || it.AlbumIdentifier != "" {
			sawAlbumField = true
		}
		if !it.IsBest {
			result.TotalDuplicates++
		}

		result.Groups[gi].Items = append(result.Groups[gi].Items, it)
	}

	if sawAlbumField {
		result.Mode = ModeAlbum
	} else {
		result.Mode = ModeTrack
	}
	return result, nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
