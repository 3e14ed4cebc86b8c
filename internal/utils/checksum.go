// Package utils holds small, dependency-free filesystem helpers shared by
// the scanner and staging engine: content hashing and safe file moves.
package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// SHA256File computes the SHA-256 content hash of the file at path, used
// throughout as the TrackRecord content hash and the staging manifest's
// pre-move hash.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// VerifySHA256 reports whether the file at path currently hashes to want.
func VerifySHA256(path string, want string) (bool, error) {
	got, err := SHA256File(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
