package fingerprint

import (
	"fmt"
	"os/exec"

	"github.com/ohtostado/duperscooper/internal/errs"
)

// CheckExecutable reports whether path resolves to a runnable executable,
// either directly or via PATH lookup.
func CheckExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("executable path is empty")
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable %q not found: %w", path, err)
	}
	return nil
}

// ValidateTools checks that both the Fingerprinter and Metadata probe
// executables are present. Absence of either is a hard, user-actionable
// error at startup of any operation requiring them.
func ValidateTools(fingerprinterPath, probePath string) error {
	if err := CheckExecutable(fingerprinterPath); err != nil {
		return errs.Environment(fmt.Errorf("fingerprinter validation failed: %w", err))
	}
	if err := CheckExecutable(probePath); err != nil {
		return errs.Environment(fmt.Errorf("metadata probe validation failed: %w", err))
	}
	return nil
}
