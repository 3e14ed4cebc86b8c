package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtostado/duperscooper/internal/model"
)

func member(isBest bool, sim float64) model.Member {
	return model.Member{Path: "/x.flac", IsBest: isBest, SimilarityToBest: sim}
}

func TestEliminateDuplicatesKeepsOnlyBest(t *testing.T) {
	cfg, err := BuiltinStrategy("eliminate-duplicates", "")
	require.NoError(t, err)

	best := ProjectTrack(nil, member(true, 100))
	other := ProjectTrack(nil, member(false, 98))

	assert.Equal(t, ActionKeep, ResolveAction(cfg, best))
	assert.Equal(t, ActionDelete, ResolveAction(cfg, other))
}

func TestKeepLosslessUsesTrackMetadata(t *testing.T) {
	cfg, err := BuiltinStrategy("keep-lossless", "")
	require.NoError(t, err)

	lossless := &model.TrackRecord{Metadata: model.Metadata{Lossless: true}}
	lossy := &model.TrackRecord{Metadata: model.Metadata{Lossless: false}}

	assert.Equal(t, ActionKeep, ResolveAction(cfg, ProjectTrack(lossless, member(false, 90))))
	assert.Equal(t, ActionDelete, ResolveAction(cfg, ProjectTrack(lossy, member(false, 90))))
}

func TestKeepFormatMatchesCodec(t *testing.T) {
	cfg, err := BuiltinStrategy("keep-format", "flac")
	require.NoError(t, err)

	flacTrack := &model.TrackRecord{Metadata: model.Metadata{Codec: "flac"}}
	mp3Track := &model.TrackRecord{Metadata: model.Metadata{Codec: "mp3"}}

	assert.Equal(t, ActionKeep, ResolveAction(cfg, ProjectTrack(flacTrack, member(false, 90))))
	assert.Equal(t, ActionDelete, ResolveAction(cfg, ProjectTrack(mp3Track, member(false, 90))))
}

func TestAbsentFieldEvaluatesFalseForEqualityTrueForNotEqual(t *testing.T) {
	cfg := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{{
			Name: "album-only", Priority: 10, Action: ActionDelete, Logic: LogicAnd,
			Conditions: []Condition{{Field: FieldAlbumIdentifier, Operator: OpEqual, Value: "mbid-1"}},
		}},
	}
	require.NoError(t, Validate(cfg))

	trackProj := ProjectTrack(nil, member(false, 90)) // no album_identifier field at all
	assert.Equal(t, ActionKeep, ResolveAction(cfg, trackProj))

	cfg.Rules[0].Conditions[0].Operator = OpNotEqual
	assert.Equal(t, ActionDelete, ResolveAction(cfg, trackProj))
}

func TestPriorityDescendingFirstMatchWins(t *testing.T) {
	cfg := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{
			{Name: "low", Priority: 1, Action: ActionDelete, Logic: LogicAnd,
				Conditions: []Condition{{Field: FieldIsBest, Operator: OpEqual, Value: "false"}}},
			{Name: "high", Priority: 10, Action: ActionKeep, Logic: LogicAnd,
				Conditions: []Condition{{Field: FieldIsBest, Operator: OpEqual, Value: "false"}}},
		},
	}
	require.NoError(t, Validate(cfg))

	proj := ProjectTrack(nil, member(false, 90))
	assert.Equal(t, ActionKeep, ResolveAction(cfg, proj))
}

func TestOrLogicMatchesOnAnyCondition(t *testing.T) {
	rule := Rule{
		Name: "or-rule", Priority: 1, Action: ActionDelete, Logic: LogicOr,
		Conditions: []Condition{
			{Field: FieldSimilarityToBest, Operator: OpGreaterEqual, Value: "99"},
			{Field: FieldIsBest, Operator: OpEqual, Value: "true"},
		},
	}
	cfg := &Config{DefaultAction: ActionKeep, Rules: []Rule{rule}}
	require.NoError(t, Validate(cfg))

	matches := ProjectTrack(nil, member(false, 99.5))
	assert.Equal(t, ActionDelete, ResolveAction(cfg, matches))

	noMatch := ProjectTrack(nil, member(false, 50))
	assert.Equal(t, ActionKeep, ResolveAction(cfg, noMatch))
}

func TestMatchesRegexOperator(t *testing.T) {
	cfg := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{{
			Name: "live-takes", Priority: 1, Action: ActionDelete, Logic: LogicAnd,
			Conditions: []Condition{{Field: FieldPath, Operator: OpMatchesRegex, Value: "(Live|Demo)"}},
		}},
	}
	require.NoError(t, Validate(cfg))

	live := ProjectTrack(nil, model.Member{Path: "/Artist/Album (Live)/01.flac"})
	studio := ProjectTrack(nil, model.Member{Path: "/Artist/Album/01.flac"})

	assert.Equal(t, ActionDelete, ResolveAction(cfg, live))
	assert.Equal(t, ActionKeep, ResolveAction(cfg, studio))
}

func TestValidateRejectsUnknownFieldAndBadRegex(t *testing.T) {
	badField := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{{Name: "r", Priority: 1, Action: ActionKeep, Logic: LogicAnd,
			Conditions: []Condition{{Field: "nonexistent", Operator: OpEqual, Value: "x"}}}},
	}
	assert.Error(t, Validate(badField))

	badRegex := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{{Name: "r", Priority: 1, Action: ActionKeep, Logic: LogicAnd,
			Conditions: []Condition{{Field: FieldPath, Operator: OpMatchesRegex, Value: "("}}}},
	}
	assert.Error(t, Validate(badRegex))
}

func TestInAndNotInOperators(t *testing.T) {
	cfg := &Config{
		DefaultAction: ActionKeep,
		Rules: []Rule{{
			Name: "format-in", Priority: 1, Action: ActionDelete, Logic: LogicAnd,
			Conditions: []Condition{{Field: FieldFormat, Operator: OpIn, Values: []string{"mp3", "aac"}}},
		}},
	}
	require.NoError(t, Validate(cfg))

	mp3 := ProjectTrack(&model.TrackRecord{Metadata: model.Metadata{Codec: "mp3"}}, member(false, 90))
	flac := ProjectTrack(&model.TrackRecord{Metadata: model.Metadata{Codec: "flac"}}, member(false, 90))

	assert.Equal(t, ActionDelete, ResolveAction(cfg, mp3))
	assert.Equal(t, ActionKeep, ResolveAction(cfg, flac))

	cfg.Rules[0].Conditions[0].Operator = OpNotIn
	assert.Equal(t, ActionKeep, ResolveAction(cfg, mp3))
	assert.Equal(t, ActionDelete, ResolveAction(cfg, flac))
}
