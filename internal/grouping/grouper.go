package grouping

import (
	"sort"

	"github.com/google/uuid"

	"github.com/ohtostado/duperscooper/internal/model"
)

// Algorithm selects the grouping strategy.
type Algorithm string

const (
	AlgorithmExact      Algorithm = "exact"
	AlgorithmPerceptual Algorithm = "perceptual"
)

// Options configures one grouping pass.
type Options struct {
	Algorithm Algorithm
	Threshold float64 // percent, [0, 100]; only used for AlgorithmPerceptual
}

// Group runs the configured algorithm over tracks (already excluding any
// with FingerprintFail) and returns the duplicate groups, each with its
// best member selected and non-best members annotated with similarity.
func Group(tracks []*model.TrackRecord, opts Options) []model.Group {
	usable := make([]*model.TrackRecord, 0, len(tracks))
	for _, t := range tracks {
		if !t.FingerprintFail {
			usable = append(usable, t)
		}
	}

	switch opts.Algorithm {
	case AlgorithmExact:
		return groupExact(usable)
	default:
		return groupFuzzy(usable, clampThreshold(opts.Threshold))
	}
}

func clampThreshold(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 100 {
		return 100
	}
	return t
}

// groupExact partitions tracks by content hash; partitions of size >= 2
// become groups. O(n).
func groupExact(tracks []*model.TrackRecord) []model.Group {
	byHash := map[string][]*model.TrackRecord{}
	order := []string{}
	for _, t := range tracks {
		if _, ok := byHash[t.ContentHash]; !ok {
			order = append(order, t.ContentHash)
		}
		byHash[t.ContentHash] = append(byHash[t.ContentHash], t)
	}

	var groups []model.Group
	for _, hash := range order {
		members := byHash[hash]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, buildGroup(members, exactSimilarity, "exact"))
	}
	return groups
}

// exactSimilarity reports 100%: exact matches are byte-identical, so
// similarity to best is always maximal.
func exactSimilarity(i, j int) (float64, bool) { return 100, true }

// groupFuzzy performs all-pairs Hamming comparison and unions pairs
// meeting threshold, producing connected components of size >= 2.
func groupFuzzy(tracks []*model.TrackRecord, threshold float64) []model.Group {
	n := len(tracks)
	if n < 2 {
		return nil
	}

	uf := NewUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim, ok := Similarity(tracks[i].Fingerprint, tracks[j].Fingerprint)
			if !ok {
				continue
			}
			if sim >= threshold {
				uf.Union(i, j)
			}
		}
	}

	var groups []model.Group
	for _, component := range uf.Components() {
		if len(component) < 2 {
			continue
		}
		members := make([]*model.TrackRecord, len(component))
		for k, idx := range component {
			members[k] = tracks[idx]
		}
		groups = append(groups, buildGroup(members, func(i, j int) (float64, bool) {
			return Similarity(members[i].Fingerprint, members[j].Fingerprint)
		}, "fingerprint"))
	}
	return groups
}

// buildGroup selects the best member (max quality score, ties by
// lexicographic path), computes each other member's similarity to best,
// and sorts non-best members by descending similarity (ties
// lexicographic).
func buildGroup(members []*model.TrackRecord, similarityFn func(i, j int) (float64, bool), matchMethod string) model.Group {
	bestIdx := 0
	for i := 1; i < len(members); i++ {
		if isBetter(members[i], members[bestIdx]) {
			bestIdx = i
		}
	}

	type scored struct {
		track *model.TrackRecord
		sim   float64
	}
	others := make([]scored, 0, len(members)-1)
	for i, m := range members {
		if i == bestIdx {
			continue
		}
		sim, ok := similarityFn(bestIdx, i)
		if !ok {
			sim = 0
		}
		others = append(others, scored{track: m, sim: sim})
	}

	sort.Slice(others, func(i, j int) bool {
		if others[i].sim != others[j].sim {
			return others[i].sim > others[j].sim
		}
		return others[i].track.Path < others[j].track.Path
	})

	best := members[bestIdx]
	items := []model.Member{{
		Path:              best.Path,
		QualityScore:      best.QualityScore,
		QualityString:     best.QualityString,
		IsBest:            true,
		SimilarityToBest:  100.0,
		RecommendedAction: model.ActionKeep,
		MatchMethod:       matchMethod,
	}}
	for _, o := range others {
		items = append(items, model.Member{
			Path:              o.track.Path,
			QualityScore:      o.track.QualityScore,
			QualityString:     o.track.QualityString,
			IsBest:            false,
			SimilarityToBest:  o.sim,
			RecommendedAction: model.ActionDelete,
			MatchMethod:       matchMethod,
		})
	}

	return model.Group{ID: uuid.NewString(), Mode: "track", Items: items}
}

// isBetter reports whether a outranks b as the group's best member:
// higher quality score wins; ties broken by lexicographically smaller
// path.
func isBetter(a, b *model.TrackRecord) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	return a.Path < b.Path
}
