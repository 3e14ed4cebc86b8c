package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/logging"
	"github.com/ohtostado/duperscooper/internal/metrics"
	"github.com/ohtostado/duperscooper/internal/utils"
)

// Outcome is the result of one Stage call: the finalized manifest, the
// batch directory it lives in, and any per-item errors that did not stop
// the batch (spec §7's per-item staging failures).
type Outcome struct {
	Manifest *Manifest
	BatchDir string
	Errors   []*errs.Error
}

// Stage moves paths into a fresh UUID-named batch directory under the
// staging root created alongside paths' common ancestor, recording a
// content hash per item before the move and finalizing a manifest.
// Per-item move failures are collected rather than aborting the batch. m
// may be nil to skip metrics recording.
func Stage(paths []string, mode string, m *metrics.Metrics) (*Outcome, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("staging: no paths given")
	}

	ancestor := commonAncestor(paths)
	batchID := uuid.NewString()
	batchDir := filepath.Join(ancestor, RootDirName, batchID)

	manifest := &Manifest{BatchID: batchID, Mode: mode}
	var collected []*errs.Error

	for _, path := range paths {
		rel, err := filepath.Rel(ancestor, path)
		if err != nil {
			collected = append(collected, errs.Staging(path, err))
			logging.Warnf("staging: failed to compute relative path for %s: %v", path, err)
			continue
		}

		hash, err := utils.SHA256File(path)
		if err != nil {
			collected = append(collected, errs.Staging(path, err))
			logging.Warnf("staging: failed to hash %s before move: %v", path, err)
			continue
		}

		size, err := fileSize(path)
		if err != nil {
			collected = append(collected, errs.Staging(path, err))
			logging.Warnf("staging: failed to stat %s before move: %v", path, err)
			continue
		}

		dst := filepath.Join(batchDir, rel)
		if err := utils.SafeMoveFile(path, dst); err != nil {
			collected = append(collected, errs.Staging(path, err))
			logging.Warnf("staging: move of %s failed: %v", path, err)
			if m != nil {
				m.StagingItems.WithLabelValues("failed").Inc()
			}
			continue
		}

		manifest.Items = append(manifest.Items, Item{
			OriginalPath:  path,
			StagedSubpath: rel,
			Size:          size,
			ContentHash:   hash,
		})
		if m != nil {
			m.BytesStaged.Add(float64(size))
			m.StagingItems.WithLabelValues("staged").Inc()
		}
	}

	manifest.CreatedAt = time.Now()
	if err := writeManifest(batchDir, manifest); err != nil {
		return nil, err
	}

	return &Outcome{Manifest: manifest, BatchDir: batchDir, Errors: collected}, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// commonAncestor returns the deepest directory containing every path.
func commonAncestor(paths []string) string {
	if len(paths) == 1 {
		return filepath.Dir(paths[0])
	}

	ancestor := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		ancestor = commonPrefixDir(ancestor, filepath.Dir(p))
	}
	return ancestor
}

func commonPrefixDir(a, b string) string {
	aParts := strings.Split(filepath.ToSlash(a), "/")
	bParts := strings.Split(filepath.ToSlash(b), "/")

	n := len(aParts)
	if len(bParts) < n {
		n = len(bParts)
	}

	var common []string
	for i := 0; i < n; i++ {
		if aParts[i] != bParts[i] {
			break
		}
		common = append(common, aParts[i])
	}
	if len(common) == 0 {
		return string(filepath.Separator)
	}
	return filepath.FromSlash(strings.Join(common, "/"))
}
