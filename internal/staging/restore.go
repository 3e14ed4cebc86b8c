package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/logging"
	"github.com/ohtostado/duperscooper/internal/metrics"
	"github.com/ohtostado/duperscooper/internal/utils"
)

// RestoreOptions configures one restoration pass over a batch.
type RestoreOptions struct {
	// TargetRoot, if non-empty, overrides the destination root; items are
	// restored under TargetRoot/<staged-subpath> instead of their
	// recorded original path.
	TargetRoot string
	// Only, if non-empty, restricts restoration to these staged
	// subpaths (interactive partial restoration). Empty means all
	// unrestored items.
	Only map[string]bool
}

// RestoreOutcome reports what happened during one Restore call.
type RestoreOutcome struct {
	Manifest  *Manifest
	Restored  []string // staged subpaths successfully restored this call
	Errors    []*errs.Error
	Archived  bool // true if the batch was moved to .restored/ after this call
}

// Restore restores items from the batch at batchDir per opts. Each item's
// staged content hash is re-verified before the move; a mismatch or a
// destination collision fails that item without touching its manifest
// entry, per spec §4.8's failure semantics. m may be nil to skip metrics
// recording.
func Restore(batchDir string, opts RestoreOptions, m *metrics.Metrics) (*RestoreOutcome, error) {
	manifest, err := readManifest(batchDir)
	if err != nil {
		return nil, err
	}

	outcome := &RestoreOutcome{Manifest: manifest}
	dirty := false

	for i := range manifest.Items {
		item := &manifest.Items[i]
		if item.Restored {
			continue
		}
		if opts.Only != nil && !opts.Only[item.StagedSubpath] {
			continue
		}

		stagedPath := filepath.Join(batchDir, item.StagedSubpath)
		ok, err := utils.VerifySHA256(stagedPath, item.ContentHash)
		if err != nil {
			outcome.Errors = append(outcome.Errors, errs.Staging(item.OriginalPath, err))
			logging.Warnf("staging: failed to verify %s before restore: %v", stagedPath, err)
			recordStagingOutcome(m, "failed")
			continue
		}
		if !ok {
			outcome.Errors = append(outcome.Errors, errs.Staging(item.OriginalPath,
				fmt.Errorf("content hash mismatch on restore")))
			logging.Warnf("staging: hash mismatch restoring %s, skipped", item.OriginalPath)
			recordStagingOutcome(m, "failed")
			continue
		}

		dest := item.OriginalPath
		if opts.TargetRoot != "" {
			dest = filepath.Join(opts.TargetRoot, item.StagedSubpath)
		}

		if _, err := os.Stat(dest); err == nil {
			outcome.Errors = append(outcome.Errors, errs.Staging(item.OriginalPath,
				fmt.Errorf("restore target already exists: %s", dest)))
			logging.Warnf("staging: restore target collision at %s, skipped", dest)
			recordStagingOutcome(m, "failed")
			continue
		}

		if err := utils.SafeMoveFile(stagedPath, dest); err != nil {
			outcome.Errors = append(outcome.Errors, errs.Staging(item.OriginalPath, err))
			logging.Warnf("staging: restore move of %s failed: %v", item.OriginalPath, err)
			recordStagingOutcome(m, "failed")
			continue
		}

		item.Restored = true
		dirty = true
		outcome.Restored = append(outcome.Restored, item.StagedSubpath)
		logging.GetGlobalLogger().LogStagingEvent(manifest.BatchID, item.OriginalPath, "restored")
		recordStagingOutcome(m, "restored")
	}

	if dirty {
		if err := writeManifest(batchDir, manifest); err != nil {
			return outcome, err
		}
	}

	if manifest.RestorationState() == RestorationAll {
		if _, err := archiveBatch(batchDir, manifest.BatchID); err != nil {
			return outcome, err
		}
		outcome.Archived = true
	}

	return outcome, nil
}

// recordStagingOutcome increments the staging items counter for outcome,
// if m is non-nil.
func recordStagingOutcome(m *metrics.Metrics, outcome string) {
	if m != nil {
		m.StagingItems.WithLabelValues(outcome).Inc()
	}
}

// archiveBatch moves a fully-restored batch directory into the
// .restored/ archival sibling of its staging root.
func archiveBatch(batchDir, batchID string) (string, error) {
	root := filepath.Dir(batchDir) // .../.deletedByDuperscooper
	archiveRoot := filepath.Join(root, RestoredDirName)
	if err := os.MkdirAll(archiveRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive root: %w", err)
	}
	dst := filepath.Join(archiveRoot, batchID)
	if err := os.Rename(batchDir, dst); err != nil {
		return "", fmt.Errorf("failed to archive batch %s: %w", batchID, err)
	}
	return dst, nil
}
