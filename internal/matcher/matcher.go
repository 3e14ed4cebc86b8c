// Package matcher implements the album matching engine (spec §4.7): three
// matching strategies, a confidence model, and canonical-album inheritance
// for the default "auto" strategy.
package matcher

import (
	"sort"

	"github.com/google/uuid"

	"github.com/ohtostado/duperscooper/internal/grouping"
	"github.com/ohtostado/duperscooper/internal/model"
)

// Strategy selects the matching approach.
type Strategy string

const (
	StrategyIdentifier  Strategy = "identifier"
	StrategyFingerprint Strategy = "fingerprint"
	StrategyAuto        Strategy = "auto"
)

// Options configures one album matching pass.
type Options struct {
	Strategy       Strategy
	Threshold      float64 // percent, [0, 100]
	Partial        bool
	MinOverlapRate float64 // only used when Partial is true
}

// Match runs the configured strategy over albums and returns the
// resulting duplicate groups, each with a best album selected, members
// annotated with mean similarity to best, and presentation confidence
// assigned per spec §4.7.
func Match(albums []*model.Album, opts Options) []model.Group {
	switch opts.Strategy {
	case StrategyIdentifier:
		return matchByIdentifier(albums)
	case StrategyFingerprint:
		return matchByFingerprint(albums, opts)
	default:
		return matchAuto(albums, opts)
	}
}

// matchByIdentifier partitions albums by (album identifier, track count).
// Partitions containing a mixed-identifiers member are excluded
// regardless of identifier, per spec §4.7 and the boundary behavior in
// §8: an album with mixed-identifiers never matches via this strategy.
func matchByIdentifier(albums []*model.Album) []model.Group {
	type key struct {
		id    string
		count int
	}
	partitions := map[key][]*model.Album{}
	order := []key{}
	for _, a := range albums {
		if a.MixedIdentifiers || a.AlbumIdentifier == "" {
			continue
		}
		k := key{id: a.AlbumIdentifier, count: len(a.Tracks)}
		if _, ok := partitions[k]; !ok {
			order = append(order, k)
		}
		partitions[k] = append(partitions[k], a)
	}

	var groups []model.Group
	for _, k := range order {
		members := partitions[k]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, buildIdentifierGroup(members))
	}
	return groups
}

func buildIdentifierGroup(albums []*model.Album) model.Group {
	best := pickBestAlbum(albums)

	items := make([]model.Member, 0, len(albums))
	for _, a := range albums {
		sim := 100.0
		items = append(items, model.Member{
			Path:              a.Path,
			QualityScore:      a.AverageQuality,
			QualityString:     a.AverageQualityStr,
			IsBest:            a == best,
			SimilarityToBest:  sim,
			RecommendedAction: actionFor(a == best),
			MatchedAlbum:      best.AlbumName,
			MatchedArtist:     best.ArtistName,
			Confidence:        100.0,
			MatchMethod:       string(StrategyIdentifier),
		})
	}
	sortNonBest(items)
	return model.Group{ID: uuid.NewString(), Mode: "album", Items: items}
}

// matchByFingerprint computes pairwise album similarity as the arithmetic
// mean of per-track similarities (tracks sorted by filename within each
// album), unions pairs meeting threshold (or the partial-mode condition),
// and builds groups from the resulting connected components.
func matchByFingerprint(albums []*model.Album, opts Options) []model.Group {
	n := len(albums)
	if n < 2 {
		return nil
	}

	uf := grouping.NewUnionFind(n)
	simCache := map[[2]int]float64{}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim, ok := albumSimilarity(albums[i], albums[j], opts)
			if !ok {
				continue
			}
			simCache[[2]int{i, j}] = sim
			simCache[[2]int{j, i}] = sim
			uf.Union(i, j)
		}
	}

	var groups []model.Group
	for _, component := range uf.Components() {
		if len(component) < 2 {
			continue
		}
		members := make([]*model.Album, len(component))
		for k, idx := range component {
			members[k] = albums[idx]
		}
		groups = append(groups, buildFingerprintGroup(members, albums, component, simCache))
	}
	return groups
}

// albumSimilarity returns the mean per-track Hamming similarity between a
// and b and whether they are eligible to match: equal track counts (or,
// in partial mode, an overlap ratio >= MinOverlapRate compared over the
// shorter album's track count) and mean similarity >= threshold.
func albumSimilarity(a, b *model.Album, opts Options) (float64, bool) {
	aTracks := a.SortedTracks()
	bTracks := b.SortedTracks()

	minCount := len(aTracks)
	maxCount := len(bTracks)
	if minCount > maxCount {
		minCount, maxCount = maxCount, minCount
	}
	if minCount == 0 {
		return 0, false
	}

	if len(aTracks) != len(bTracks) {
		if !opts.Partial {
			return 0, false
		}
		overlap := float64(minCount) / float64(maxCount)
		if overlap < opts.MinOverlapRate {
			return 0, false
		}
	}

	var sum float64
	var compared int
	for i := 0; i < minCount; i++ {
		sim, ok := grouping.Similarity(aTracks[i].Fingerprint, bTracks[i].Fingerprint)
		if !ok {
			continue
		}
		sum += sim
		compared++
	}
	if compared == 0 {
		return 0, false
	}
	mean := sum / float64(compared)
	if mean < opts.Threshold {
		return 0, false
	}
	return mean, true
}

func buildFingerprintGroup(members []*model.Album, all []*model.Album, componentIdx []int, simCache map[[2]int]float64) model.Group {
	best := pickBestAlbum(members)
	var bestGlobalIdx int
	for _, idx := range componentIdx {
		if all[idx] == best {
			bestGlobalIdx = idx
			break
		}
	}

	items := make([]model.Member, 0, len(members))
	for k, a := range members {
		globalIdx := componentIdx[k]
		sim := 100.0
		if a != best {
			sim = simCache[[2]int{bestGlobalIdx, globalIdx}]
		}
		items = append(items, model.Member{
			Path:              a.Path,
			QualityScore:      a.AverageQuality,
			QualityString:     a.AverageQualityStr,
			IsBest:            a == best,
			SimilarityToBest:  sim,
			RecommendedAction: actionFor(a == best),
			MatchedAlbum:      best.AlbumName,
			MatchedArtist:     best.ArtistName,
			Confidence:        confidenceFor(a, best, sim, a == best, false),
			MatchMethod:       string(StrategyFingerprint),
		})
	}
	sortNonBest(items)
	return model.Group{ID: uuid.NewString(), Mode: "album", Items: items}
}

// matchAuto is the default strategy: partition into canonical/
// non-canonical; group canonicals by identifier, then fingerprint; then
// assign each non-canonical album to the best-matching canonical group.
func matchAuto(albums []*model.Album, opts Options) []model.Group {
	var canonical, nonCanonical []*model.Album
	for _, a := range albums {
		if a.IsCanonical() {
			canonical = append(canonical, a)
		} else {
			nonCanonical = append(nonCanonical, a)
		}
	}

	identifierGroups := matchByIdentifier(canonical)
	grouped := map[string]bool{}
	for _, g := range identifierGroups {
		for _, m := range g.Items {
			grouped[m.Path] = true
		}
	}

	var remaining []*model.Album
	for _, a := range canonical {
		if !grouped[a.Path] {
			remaining = append(remaining, a)
		}
	}

	fingerprintGroups := matchByFingerprint(remaining, opts)

	groups := append(identifierGroups, fingerprintGroups...)

	// For each non-canonical album, assign it to the canonical group with
	// maximal mean similarity >= threshold, inheriting that group's
	// matched album/artist for display.
	byPath := albumsByPath(albums)
	for _, nc := range nonCanonical {
		bestGroupIdx := -1
		bestSim := -1.0
		for gi := range groups {
			group := &groups[gi]
			bestMember, ok := group.Best()
			if !ok {
				continue
			}
			bestAlbum := byPath[bestMember.Path]
			if bestAlbum == nil {
				continue
			}
			sim, ok := albumSimilarity(nc, bestAlbum, opts)
			if !ok {
				continue
			}
			if sim > bestSim {
				bestSim = sim
				bestGroupIdx = gi
			}
		}
		if bestGroupIdx < 0 {
			continue
		}
		group := &groups[bestGroupIdx]
		best, _ := group.Best()
		bestAlbum := byPath[best.Path]
		group.Items = append(group.Items, model.Member{
			Path:              nc.Path,
			QualityScore:      nc.AverageQuality,
			QualityString:     nc.AverageQualityStr,
			IsBest:            false,
			SimilarityToBest:  bestSim,
			RecommendedAction: model.ActionDelete,
			MatchedAlbum:      best.MatchedAlbum,
			MatchedArtist:     best.MatchedArtist,
			Confidence:        confidenceFor(nc, bestAlbum, bestSim, false, true),
			MatchMethod:       string(StrategyAuto),
		})
		sortNonBest(group.Items)
	}

	// No group is dropped here: the sub-strategies only emit groups of
	// size >= 2, and inheritance only adds members, so a canonical group
	// with no inherited members is returned as it is.
	return groups
}

func albumsByPath(albums []*model.Album) map[string]*model.Album {
	m := make(map[string]*model.Album, len(albums))
	for _, a := range albums {
		m[a.Path] = a
	}
	return m
}

// pickBestAlbum selects the max-aggregate-quality album, ties broken by
// lexicographic path.
func pickBestAlbum(albums []*model.Album) *model.Album {
	best := albums[0]
	for _, a := range albums[1:] {
		if a.AverageQuality > best.AverageQuality ||
			(a.AverageQuality == best.AverageQuality && a.Path < best.Path) {
			best = a
		}
	}
	return best
}

func actionFor(isBest bool) model.RecommendedAction {
	if isBest {
		return model.ActionKeep
	}
	return model.ActionDelete
}

// confidenceFor implements spec §4.7's confidence model. Identifier
// matches are handled by the caller (always 100); this covers the
// fingerprint/auto path: 80% base + 5% album-tag match + 5% artist-tag
// match + up to 10% scaled linearly over the 98-100% similarity range.
func confidenceFor(a, best *model.Album, similarity float64, isBest bool, inherited bool) float64 {
	if isBest {
		return 100.0
	}
	confidence := 80.0
	if best != nil {
		if a.AlbumName != "" && a.AlbumName == best.AlbumName {
			confidence += 5
		}
		if a.ArtistName != "" && a.ArtistName == best.ArtistName {
			confidence += 5
		}
	}
	confidence += similarityBonus(similarity)
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

// similarityBonus linearly scales up to 10 points over the 98-100%
// fingerprint-similarity range. This monotone function is a presentation
// heuristic (spec §9 open question); any deterministic monotone function
// satisfies the spec, and linear is the simplest.
func similarityBonus(similarity float64) float64 {
	if similarity <= 98 {
		return 0
	}
	if similarity >= 100 {
		return 10
	}
	return (similarity - 98) / 2 * 10
}

func sortNonBest(items []model.Member) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsBest != items[j].IsBest {
			return items[i].IsBest
		}
		if items[i].SimilarityToBest != items[j].SimilarityToBest {
			return items[i].SimilarityToBest > items[j].SimilarityToBest
		}
		return items[i].Path < items[j].Path
	})
}
