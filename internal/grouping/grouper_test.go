package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/model"
)

func track(path, hash string, score float64, fp []uint32) *model.TrackRecord {
	return &model.TrackRecord{Path: path, ContentHash: hash, QualityScore: score, Fingerprint: fp}
}

func TestSimilarityReflexiveAndSymmetric(t *testing.T) {
	a := []uint32{1, 2, 3, 4}
	b := []uint32{1, 2, 3, 5}

	selfSim, ok := Similarity(a, a)
	require.True(t, ok)
	assert.Equal(t, 100.0, selfSim)

	ab, ok := Similarity(a, b)
	require.True(t, ok)
	ba, ok := Similarity(b, a)
	require.True(t, ok)
	assert.Equal(t, ab, ba)
}

func TestSimilarityComparesCommonPrefix(t *testing.T) {
	a := []uint32{0, 0, 0}
	b := []uint32{0, 0, 0, 0xFFFFFFFF}

	sim, ok := Similarity(a, b)
	require.True(t, ok)
	assert.Equal(t, 100.0, sim)
}

func TestSimilarityEmptyCommonPrefixUndefined(t *testing.T) {
	_, ok := Similarity([]uint32{}, []uint32{1, 2, 3})
	assert.False(t, ok)
}

func TestGroupExactPartitionsByContentHash(t *testing.T) {
	a := track("/a.flac", "h1", 100, nil)
	b := track("/b.flac", "h1", 100, nil)
	c := track("/c.flac", "h2", 50, nil)

	groups := Group([]*model.TrackRecord{a, b, c}, Options{Algorithm: AlgorithmExact})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 2)
}

func TestGroupFuzzyThreshold100RequiresZeroHammingDistance(t *testing.T) {
	a := track("/a.flac", "h1", 11644, []uint32{1, 2, 3})
	b := track("/b.flac", "h2", 320, []uint32{1, 2, 4})

	groups := Group([]*model.TrackRecord{a, b}, Options{Algorithm: AlgorithmPerceptual, Threshold: 100})
	assert.Empty(t, groups)
}

func TestGroupFuzzyBestSelectionAndSimilarityAnnotation(t *testing.T) {
	flac := track("/flac.flac", "h1", 11644, []uint32{0xAAAAAAAA, 0xBBBBBBBB})
	mp3 := track("/mp3.mp3", "h2", 320, []uint32{0xAAAAAAAA, 0xBBBBBBBB})

	groups := Group([]*model.TrackRecord{flac, mp3}, Options{Algorithm: AlgorithmPerceptual, Threshold: 97})
	require.Len(t, groups, 1)

	best, ok := groups[0].Best()
	require.True(t, ok)
	assert.Equal(t, "/flac.flac", best.Path)
	assert.Equal(t, 100.0, best.SimilarityToBest)

	require.Len(t, groups[0].Items, 2)
	other := groups[0].Items[1]
	assert.Equal(t, model.ActionDelete, other.RecommendedAction)
}

func TestGroupSizeOneNeverEmitted(t *testing.T) {
	a := track("/a.flac", "h1", 100, []uint32{1, 2, 3})
	groups := Group([]*model.TrackRecord{a}, Options{Algorithm: AlgorithmPerceptual, Threshold: 97})
	assert.Empty(t, groups)
}

func TestGroupExcludesFingerprintFailures(t *testing.T) {
	a := track("/a.flac", "h1", 100, []uint32{1, 2, 3})
	a.FingerprintFail = true
	b := track("/b.flac", "h2", 100, []uint32{1, 2, 3})

	groups := Group([]*model.TrackRecord{a, b}, Options{Algorithm: AlgorithmPerceptual, Threshold: 97})
	assert.Empty(t, groups)
}

func TestUnionFindComponents(t *testing.T) {
	uf := NewUnionFind(5)
	uf.Union(0, 1)
	uf.Union(1, 2)
	uf.Union(3, 4)

	components := uf.Components()
	require.Len(t, components, 2)
	assert.ElementsMatch(t, []int{0, 1, 2}, components[0])
	assert.ElementsMatch(t, []int{3, 4}, components[1])
}
