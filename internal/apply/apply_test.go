package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/model"
	"github.com/ohtostado/duperscooper/internal/rules"
)

func sampleTrackGroup() model.Group {
	return model.Group{
		ID:   "g1",
		Mode: "track",
		Items: []model.Member{
			{Path: "/flac.flac", QualityScore: 11644, IsBest: true, SimilarityToBest: 100, RecommendedAction: model.ActionKeep},
			{Path: "/mp3.mp3", QualityScore: 320, IsBest: false, SimilarityToBest: 99, RecommendedAction: model.ActionDelete},
		},
	}
}

func sampleTracks() map[string]*model.TrackRecord {
	return map[string]*model.TrackRecord{
		"/flac.flac": {Path: "/flac.flac", Size: 30000000, Metadata: model.Metadata{Codec: "flac", Lossless: true}},
		"/mp3.mp3":   {Path: "/mp3.mp3", Size: 8000000, Metadata: model.Metadata{Codec: "mp3", Lossless: false}},
	}
}

func TestBuildScanResultAndJSONRoundTrip(t *testing.T) {
	groups := []model.Group{sampleTrackGroup()}
	result := BuildScanResult(ModeTrack, groups, sampleTracks(), nil)

	assert.Equal(t, 1, result.TotalGroups)
	assert.Equal(t, 1, result.TotalDuplicates)

	data, err := result.ToJSON()
	require.NoError(t, err)

	roundTripped, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, result, *roundTripped)
}

func TestFlatCSVRoundTripPreservesRuleRelevantFields(t *testing.T) {
	groups := []model.Group{sampleTrackGroup()}
	result := BuildScanResult(ModeTrack, groups, sampleTracks(), nil)

	data, err := result.ToFlatCSV()
	require.NoError(t, err)

	roundTripped, err := FromFlatCSV(data)
	require.NoError(t, err)
	require.Len(t, roundTripped.Groups, 1)
	require.Len(t, roundTripped.Groups[0].Items, 2)

	var flac SerializedItem
	for _, it := range roundTripped.Groups[0].Items {
		if it.Path == "/flac.flac" {
			flac = it
		}
	}
	assert.Equal(t, "flac", flac.Codec)
	assert.True(t, flac.IsLossless)
	assert.Equal(t, int64(30000000), flac.Size)
}

func TestLoadScanResultAutoDetectsShapeAndMode(t *testing.T) {
	groups := []model.Group{sampleTrackGroup()}
	result := BuildScanResult(ModeTrack, groups, sampleTracks(), nil)

	jsonData, err := result.ToJSON()
	require.NoError(t, err)
	loaded, err := LoadScanResult(jsonData)
	require.NoError(t, err)
	assert.Equal(t, ModeTrack, loaded.Mode)

	csvData, err := result.ToFlatCSV()
	require.NoError(t, err)
	loadedCSV, err := LoadScanResult(csvData)
	require.NoError(t, err)
	assert.Equal(t, ModeTrack, loadedCSV.Mode)
}

func TestEvaluateNeverDeletesEveryItemInAGroup(t *testing.T) {
	result := &ScanResult{
		Mode: ModeTrack,
		Groups: []SerializedGroup{{
			GroupID: "g1",
			Items: []SerializedItem{
				{Path: "/a.flac", IsBest: true},
				{Path: "/b.mp3", IsBest: false},
			},
		}},
	}

	cfg := &rules.Config{DefaultAction: rules.ActionDelete} // every item falls through to delete

	report := Evaluate(result, cfg)
	require.Len(t, report.Warnings, 1)

	kept := 0
	for _, d := range report.Decisions {
		if d.Action == rules.ActionKeep {
			kept++
			assert.True(t, d.Item.IsBest)
			assert.True(t, d.Overridden)
		}
	}
	assert.Equal(t, 1, kept)
}

func TestEvaluateComputesReclaimableBytes(t *testing.T) {
	result := &ScanResult{
		Mode: ModeTrack,
		Groups: []SerializedGroup{{
			GroupID: "g1",
			Items: []SerializedItem{
				{Path: "/a.flac", IsBest: true, Size: 1000},
				{Path: "/b.mp3", IsBest: false, Size: 300},
			},
		}},
	}
	cfg, err := rules.BuiltinStrategy("eliminate-duplicates", "")
	require.NoError(t, err)

	report := Evaluate(result, cfg)
	assert.Equal(t, int64(300), report.BytesReclaimed)
	assert.Equal(t, 1, report.TotalToDelete)
	assert.Equal(t, []string{"/b.mp3"}, report.PathsToDelete())
}
