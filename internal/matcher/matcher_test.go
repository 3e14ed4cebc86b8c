package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/model"
)

func albumWith(path, identifier, albumName, artistName string, quality float64, fps ...[]uint32) *model.Album {
	a := &model.Album{Path: path, AlbumIdentifier: identifier, AlbumName: albumName, ArtistName: artistName, AverageQuality: quality}
	for i, fp := range fps {
		a.Tracks = append(a.Tracks, &model.TrackRecord{
			Path:         path + "/" + string(rune('a'+i)) + ".flac",
			Fingerprint:  fp,
			QualityScore: quality,
		})
	}
	return a
}

func TestMatchByIdentifierGroupsAndExcludesMixed(t *testing.T) {
	a := albumWith("/a", "X", "Album", "Artist", 11644, []uint32{1}, []uint32{2}, []uint32{3})
	b := albumWith("/b", "X", "Album", "Artist", 320, []uint32{1}, []uint32{2}, []uint32{3})
	mixed := albumWith("/mixed", "X", "Album", "Artist", 100, []uint32{1})
	mixed.MixedIdentifiers = true

	groups := Match([]*model.Album{a, b, mixed}, Options{Strategy: StrategyIdentifier})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 2)

	best, ok := groups[0].Best()
	require.True(t, ok)
	assert.Equal(t, "/a", best.Path)
	for _, m := range groups[0].Items {
		assert.Equal(t, 100.0, m.Confidence)
	}
}

func TestMatchByIdentifierRequiresEqualTrackCount(t *testing.T) {
	a := albumWith("/a", "X", "Album", "Artist", 100, []uint32{1}, []uint32{2})
	b := albumWith("/b", "X", "Album", "Artist", 100, []uint32{1})

	groups := Match([]*model.Album{a, b}, Options{Strategy: StrategyIdentifier})
	assert.Empty(t, groups)
}

func TestMatchByFingerprintMeanSimilarity(t *testing.T) {
	a := albumWith("/a", "", "", "", 11644, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB})
	b := albumWith("/b", "", "", "", 320, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB})

	groups := Match([]*model.Album{a, b}, Options{Strategy: StrategyFingerprint, Threshold: 97})
	require.Len(t, groups, 1)
	best, ok := groups[0].Best()
	require.True(t, ok)
	assert.Equal(t, "/a", best.Path)
}

func TestMatchAutoCanonicalInheritance(t *testing.T) {
	canonA := albumWith("/canonA", "X", "Album", "Artist", 11644, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB}, []uint32{0xCCCCCCCC})
	canonB := albumWith("/canonB", "X", "Album", "Artist", 320, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB}, []uint32{0xCCCCCCCC})
	untagged := albumWith("/untagged", "", "", "", 64, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB}, []uint32{0xCCCCCCCC})

	groups := Match([]*model.Album{canonA, canonB, untagged}, Options{Strategy: StrategyAuto, Threshold: 97})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 3)

	var untaggedMember model.Member
	for _, m := range groups[0].Items {
		if m.Path == "/untagged" {
			untaggedMember = m
		}
	}
	assert.Equal(t, "Album", untaggedMember.MatchedAlbum)
	assert.Equal(t, "Artist", untaggedMember.MatchedArtist)
	assert.GreaterOrEqual(t, untaggedMember.Confidence, 80.0)
	assert.LessOrEqual(t, untaggedMember.Confidence, 95.0)
}

func TestMatchPartialModeOverlapRatio(t *testing.T) {
	a := albumWith("/a", "", "", "", 100, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB}, []uint32{0xCCCCCCCC}, []uint32{0xDDDDDDDD})
	b := albumWith("/b", "", "", "", 100, []uint32{0xAAAAAAAA}, []uint32{0xBBBBBBBB})

	groups := Match([]*model.Album{a, b}, Options{
		Strategy: StrategyFingerprint, Threshold: 97, Partial: true, MinOverlapRate: 0.5,
	})
	require.Len(t, groups, 1)
}

func TestMatchPartialModeBelowOverlapRatioRejected(t *testing.T) {
	a := albumWith("/a", "", "", "", 100, []uint32{1}, []uint32{2}, []uint32{3}, []uint32{4}, []uint32{5})
	b := albumWith("/b", "", "", "", 100, []uint32{1})

	groups := Match([]*model.Album{a, b}, Options{
		Strategy: StrategyFingerprint, Threshold: 97, Partial: true, MinOverlapRate: 0.5,
	})
	assert.Empty(t, groups)
}
