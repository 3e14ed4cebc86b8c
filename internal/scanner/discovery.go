// Package scanner implements track discovery and parallel fingerprint
// production (spec §4.4): a deterministic, lexicographically ordered
// walk over input paths, producing TrackRecords via a bounded worker pool
// over the external Fingerprinter and Metadata probe.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExtensions is the fixed, case-insensitive set of audio file
// extensions consulted by discovery. Unknown extensions are skipped
// silently.
var supportedExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".wma":  true,
	".ape":  true,
	".wv":   true,
	".alac": true,
}

// IsSupportedExtension reports whether ext (including the leading dot) is
// in the fixed supported-extensions set, case-insensitively.
func IsSupportedExtension(ext string) bool {
	return supportedExtensions[strings.ToLower(ext)]
}

// Discover walks root recursively and returns the paths of all regular
// files whose extension is supported and whose size is >= minSizeBytes (0
// disables the size filter), in deterministic lexicographic order.
func Discover(root string, minSizeBytes int64) ([]string, error) {
	var found []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !IsSupportedExtension(filepath.Ext(path)) {
			return nil
		}
		if minSizeBytes > 0 && info.Size() < minSizeBytes {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

// DiscoverAlbumDirs walks root recursively and returns the directories
// that directly contain at least one supported audio file (non-recursive
// at the album level: a directory's subdirectories are separate albums,
// not part of this one), in deterministic lexicographic order.
func DiscoverAlbumDirs(root string) ([]string, error) {
	hasAudio := map[string]bool{}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !IsSupportedExtension(filepath.Ext(path)) {
			return nil
		}
		hasAudio[filepath.Dir(path)] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(hasAudio))
	for d := range hasAudio {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// AlbumChildren returns the supported audio files directly inside dir
// (non-recursive), in deterministic lexicographic order.
func AlbumChildren(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var children []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !IsSupportedExtension(filepath.Ext(e.Name())) {
			continue
		}
		children = append(children, filepath.Join(dir, e.Name()))
	}
	sort.Strings(children)
	return children, nil
}
