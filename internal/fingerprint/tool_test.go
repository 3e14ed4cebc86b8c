package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeFingerprinter writes a tiny shell script standing in for the
// real executable, so tests never shell out to an actual fingerprinter.
func writeFakeFingerprinter(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executable script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-fpcalc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestToolFingerprintParsesOutput(t *testing.T) {
	path := writeFakeFingerprinter(t, "#!/bin/sh\necho 'DURATION=120'\necho 'FINGERPRINT=1,2,3,4294967295'\n")
	tool := NewTool(path, time.Second)

	fp, err := tool.Fingerprint(context.Background(), "/some/file.flac")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4294967295}, []uint32(fp))
}

func TestToolFingerprintMissingExecutable(t *testing.T) {
	tool := NewTool(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)
	_, err := tool.Fingerprint(context.Background(), "/some/file.flac")
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureToolMissing, failure.Kind)
}

func TestToolFingerprintNonzeroExit(t *testing.T) {
	path := writeFakeFingerprinter(t, "#!/bin/sh\necho 'boom' >&2\nexit 1\n")
	tool := NewTool(path, time.Second)

	_, err := tool.Fingerprint(context.Background(), "/some/file.flac")
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureToolError, failure.Kind)
}

func TestToolFingerprintTimeout(t *testing.T) {
	path := writeFakeFingerprinter(t, "#!/bin/sh\nsleep 5\n")
	tool := NewTool(path, 50*time.Millisecond)

	_, err := tool.Fingerprint(context.Background(), "/some/file.flac")
	require.Error(t, err)
}

func TestParseIntListEmpty(t *testing.T) {
	fp, err := parseIntList("")
	require.NoError(t, err)
	assert.Empty(t, fp)
}

func TestParseIntListInvalid(t *testing.T) {
	_, err := parseIntList("1,notanumber,3")
	assert.Error(t, err)
}
