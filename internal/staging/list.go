package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BatchSummary is one staging batch as reported by List.
type BatchSummary struct {
	BatchID          string
	Dir              string
	Age              time.Duration
	Mode             string
	ItemCount        int
	TotalSize        int64
	RestorationState RestorationState
	Archived         bool
}

// List enumerates every batch under the staging root at root (the
// .deletedByDuperscooper directory), including archived ones under
// .restored/.
func List(root string) ([]BatchSummary, error) {
	var summaries []BatchSummary

	live, err := listBatchesIn(root, false)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	summaries = append(summaries, live...)

	archiveRoot := filepath.Join(root, RestoredDirName)
	archived, err := listBatchesIn(archiveRoot, true)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	summaries = append(summaries, archived...)

	return summaries, nil
}

func listBatchesIn(dir string, archived bool) ([]BatchSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var summaries []BatchSummary
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == RestoredDirName {
			continue
		}
		batchDir := filepath.Join(dir, entry.Name())
		manifest, err := readManifest(batchDir)
		if err != nil {
			continue // not a batch directory (or manifest unreadable); skip
		}

		summaries = append(summaries, BatchSummary{
			BatchID:          manifest.BatchID,
			Dir:              batchDir,
			Age:              time.Since(manifest.CreatedAt),
			Mode:             manifest.Mode,
			ItemCount:        len(manifest.Items),
			TotalSize:        manifest.TotalSize(),
			RestorationState: manifest.RestorationState(),
			Archived:         archived,
		})
	}
	return summaries, nil
}

// Find locates a batch by UUID under root (checking both the live and
// archived locations) and returns its directory and manifest.
func Find(root, batchID string) (string, *Manifest, error) {
	for _, candidate := range []string{
		filepath.Join(root, batchID),
		filepath.Join(root, RestoredDirName, batchID),
	} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		manifest, err := readManifest(candidate)
		if err != nil {
			return "", nil, err
		}
		return candidate, manifest, nil
	}
	return "", nil, fmt.Errorf("staging batch %s not found under %s", batchID, root)
}
