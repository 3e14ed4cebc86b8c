package model

// RecommendedAction is the grouper's and matcher's verdict for a group
// member, before any rules engine override.
type RecommendedAction string

const (
	ActionKeep   RecommendedAction = "keep"
	ActionDelete RecommendedAction = "delete"
)

// Member is one item inside a Group: either a track or an album, carrying
// its similarity to the group's best member.
type Member struct {
	Path               string
	QualityScore       float64
	QualityString      string
	IsBest             bool
	SimilarityToBest   float64 // 100.0 for the best member itself
	RecommendedAction  RecommendedAction
	MatchedAlbum       string // album groups: the best member's album tag; auto-inherited members get it too
	MatchedArtist      string
	Confidence         float64 // album matcher only; 0 for track groups
	MatchMethod        string  // "identifier" | "fingerprint" | "auto" | "exact" | ""
}

// Group is a set of at least two equivalent items (tracks or albums).
type Group struct {
	ID    string
	Mode  string // "track" | "album"
	Items []Member
}

// Best returns the group's designated best member, or the zero Member and
// false if the group is empty (which should never happen: groups of size
// 1 are never emitted).
func (g *Group) Best() (Member, bool) {
	for _, m := range g.Items {
		if m.IsBest {
			return m, true
		}
	}
	return Member{}, false
}
