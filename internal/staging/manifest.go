// Package staging implements content-addressed deletion staging and
// restoration (spec §4.8): batches are UUID-named directories under
// .deletedByDuperscooper/ alongside the common ancestor of the items they
// hold, each carrying a JSON manifest that makes the move reversible.
package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// RootDirName is the staging root created alongside the targeted
	// files' common ancestor.
	RootDirName = ".deletedByDuperscooper"
	// RestoredDirName is the archival sibling fully-restored batches move
	// into.
	RestoredDirName = ".restored"
	// ManifestFileName is the batch metadata file written at finalization.
	ManifestFileName = "manifest"
)

// RestorationState summarizes how much of a batch has been restored.
type RestorationState string

const (
	RestorationNone    RestorationState = "none"
	RestorationPartial RestorationState = "partial"
	RestorationAll     RestorationState = "all"
)

// Item is one staged entry in a batch manifest.
type Item struct {
	OriginalPath string `json:"original_path"`
	StagedSubpath string `json:"staged_subpath"`
	Size         int64  `json:"size"`
	ContentHash  string `json:"content_hash"`
	Restored     bool   `json:"restored"`
}

// Manifest is a staging batch's persisted metadata, written once at batch
// finalization and subsequently rewritten only to flip Items[i].Restored.
type Manifest struct {
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	Mode      string    `json:"mode"` // "track" | "album"
	Items     []Item    `json:"items"`
}

// RestorationState reports the batch's aggregate restoration state.
func (m *Manifest) RestorationState() RestorationState {
	restored := 0
	for _, it := range m.Items {
		if it.Restored {
			restored++
		}
	}
	switch {
	case restored == 0:
		return RestorationNone
	case restored == len(m.Items):
		return RestorationAll
	default:
		return RestorationPartial
	}
}

// TotalSize sums the manifest's item sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, it := range m.Items {
		total += it.Size
	}
	return total
}

func writeManifest(batchDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(batchDir, ManifestFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func readManifest(batchDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(batchDir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}
