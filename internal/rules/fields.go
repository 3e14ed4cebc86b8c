package rules

import (
	"github.com/ohtostado/duperscooper/internal/model"
)

// Field names, the union of track and album projections (spec §4.9).
const (
	FieldPath              = "path"
	FieldIsBest            = "is_best"
	FieldQualityScore      = "quality_score"
	FieldFormat            = "format"
	FieldCodec             = "codec"
	FieldBitrate           = "bitrate"
	FieldSampleRate        = "sample_rate"
	FieldBitDepth          = "bit_depth"
	FieldIsLossless        = "is_lossless"
	FieldFileSize          = "file_size"
	FieldSimilarityToBest  = "similarity_to_best"
	FieldMatchPercentage   = "match_percentage"
	FieldMatchMethod       = "match_method"
	FieldTrackCount        = "track_count"
	FieldAlbumIdentifier   = "album_identifier"
	FieldAlbumName         = "album_name"
	FieldArtistName        = "artist_name"
)

var knownFields = map[string]bool{
	FieldPath: true, FieldIsBest: true, FieldQualityScore: true, FieldFormat: true,
	FieldCodec: true, FieldBitrate: true, FieldSampleRate: true, FieldBitDepth: true,
	FieldIsLossless: true, FieldFileSize: true, FieldSimilarityToBest: true,
	FieldMatchPercentage: true, FieldMatchMethod: true, FieldTrackCount: true,
	FieldAlbumIdentifier: true, FieldAlbumName: true, FieldArtistName: true,
}

func isKnownField(field string) bool { return knownFields[field] }

// Projection is the evaluable field set for one group member (track or
// album), merging the grouper/matcher's verdict (Member) with the
// underlying domain record's tag and format data. A field not present on
// the source record (e.g. album_identifier for a track-mode item) is
// simply absent: Get reports found=false rather than a zero value, so
// evaluate.go can apply spec §4.9's absent-field semantics.
type Projection struct {
	values map[string]interface{}
}

// Get returns field's value and whether it was present.
func (p Projection) Get(field string) (interface{}, bool) {
	v, ok := p.values[field]
	return v, ok
}

func newProjection() Projection {
	return Projection{values: map[string]interface{}{}}
}

// NewProjection builds a Projection directly from a pre-built field map,
// used by the apply pipeline to reconstruct projections from a
// deserialized scan result without needing the original TrackRecord or
// Album. Callers omit a key entirely to mark that field absent.
func NewProjection(values map[string]interface{}) Projection {
	return Projection{values: values}
}

func (p Projection) set(field string, value interface{}) {
	p.values[field] = value
}

// ProjectTrack builds a Projection for a track-mode group member.
func ProjectTrack(t *model.TrackRecord, member model.Member) Projection {
	p := newProjection()
	p.set(FieldPath, member.Path)
	p.set(FieldIsBest, member.IsBest)
	p.set(FieldQualityScore, member.QualityScore)
	p.set(FieldSimilarityToBest, member.SimilarityToBest)
	p.set(FieldMatchMethod, member.MatchMethod)

	if t != nil {
		p.set(FieldFormat, t.Metadata.Codec)
		p.set(FieldCodec, t.Metadata.Codec)
		p.set(FieldSampleRate, float64(t.Metadata.SampleRate))
		p.set(FieldIsLossless, t.Metadata.Lossless)
		p.set(FieldFileSize, float64(t.Size))
		if t.Metadata.HasBitrate {
			p.set(FieldBitrate, float64(t.Metadata.Bitrate))
		}
		if t.Metadata.HasBitDepth {
			p.set(FieldBitDepth, float64(t.Metadata.BitDepth))
		}
	}
	return p
}

// ProjectAlbum builds a Projection for an album-mode group member.
func ProjectAlbum(a *model.Album, member model.Member) Projection {
	p := newProjection()
	p.set(FieldPath, member.Path)
	p.set(FieldIsBest, member.IsBest)
	p.set(FieldQualityScore, member.QualityScore)
	p.set(FieldSimilarityToBest, member.SimilarityToBest)
	p.set(FieldMatchPercentage, member.Confidence)
	p.set(FieldMatchMethod, member.MatchMethod)

	if a != nil {
		p.set(FieldTrackCount, float64(len(a.Tracks)))
		if a.AlbumIdentifier != "" {
			p.set(FieldAlbumIdentifier, a.AlbumIdentifier)
		}
		if a.AlbumName != "" {
			p.set(FieldAlbumName, a.AlbumName)
		}
		if a.ArtistName != "" {
			p.set(FieldArtistName, a.ArtistName)
		}
	}
	return p
}
