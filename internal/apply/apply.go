package apply

import (
	"fmt"
	"strings"

	"github.com/ohtostado/duperscooper/internal/rules"
)

// LoadScanResult parses data as either serialization shape: JSON when the
// trimmed input starts with "{", the flat CSV shape otherwise. A parse
// failure is returned as is; the other shape is not tried. It then
// auto-detects mode if the parsed result did not carry one explicitly.
func LoadScanResult(data []byte) (*ScanResult, error) {
	trimmed := strings.TrimSpace(string(data))
	var result *ScanResult
	var err error

	if strings.HasPrefix(trimmed, "{") {
		result, err = FromJSON(data)
	} else {
		result, err = FromFlatCSV(data)
	}
	if err != nil {
		return nil, err
	}

	if result.Mode == "" {
		result.Mode = detectMode(result)
	}
	return result, nil
}

func detectMode(r *ScanResult) Mode {
	for _, g := range r.Groups {
		if g.MatchedAlbum != "" || g.MatchedArtist != "" {
			return ModeAlbum
		}
		for _, it := range g.Items {
			if it.TrackCount > 0 || it.AlbumIdentifier != "" {
				return ModeAlbum
			}
		}
	}
	return ModeTrack
}

// ItemDecision is one item's final action after rule evaluation, with
// the never-delete-all-items override applied.
type ItemDecision struct {
	GroupID  string
	Item     SerializedItem
	Action   rules.Action
	Overridden bool // true if this item was forced to keep by the all-deleted guard
}

// Report summarizes one apply pass: counts, reclaimable bytes, and a
// per-group preview, ready for dry-run display or execute staging.
type Report struct {
	Mode            Mode
	Decisions       []ItemDecision
	Warnings        []string
	TotalItems      int
	TotalToDelete   int
	BytesReclaimed  int64
}

// Evaluate runs cfg's rules over every item in result, enforcing that no
// group ever loses all of its items: if every item in a group would be
// deleted, the best item (or, absent one, the first) is forced to keep
// and a warning is emitted.
func Evaluate(result *ScanResult, cfg *rules.Config) Report {
	report := Report{Mode: result.Mode}

	for _, g := range result.Groups {
		groupDecisions := make([]ItemDecision, 0, len(g.Items))
		for _, it := range g.Items {
			proj := it.Projection(result.Mode)
			action := rules.ResolveAction(cfg, proj)
			groupDecisions = append(groupDecisions, ItemDecision{GroupID: g.GroupID, Item: it, Action: action})
		}

		enforceKeepOne(g.GroupID, groupDecisions, &report.Warnings)

		for _, d := range groupDecisions {
			report.TotalItems++
			if d.Action == rules.ActionDelete {
				report.TotalToDelete++
				report.BytesReclaimed += d.Item.Size
			}
			report.Decisions = append(report.Decisions, d)
		}
	}

	return report
}

// enforceKeepOne mutates decisions in place: if every item in the group
// is marked delete, the best item is forced to keep (spec §4.9).
func enforceKeepOne(groupID string, decisions []ItemDecision, warnings *[]string) {
	anyKeep := false
	for _, d := range decisions {
		if d.Action == rules.ActionKeep {
			anyKeep = true
			break
		}
	}
	if anyKeep || len(decisions) == 0 {
		return
	}

	keepIdx := 0
	for i, d := range decisions {
		if d.Item.IsBest {
			keepIdx = i
			break
		}
	}
	decisions[keepIdx].Action = rules.ActionKeep
	decisions[keepIdx].Overridden = true
	*warnings = append(*warnings, fmt.Sprintf(
		"group %s: rule configuration would have deleted every item; kept %s",
		groupID, decisions[keepIdx].Item.Path))
}

// PathsToDelete extracts the item paths marked for deletion, in report
// order, for handing to the staging engine under execute.
func (r Report) PathsToDelete() []string {
	var paths []string
	for _, d := range r.Decisions {
		if d.Action == rules.ActionDelete {
			paths = append(paths, d.Item.Path)
		}
	}
	return paths
}
