package fingerprint

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ohtostado/duperscooper/internal/model"
)

// albumIdentifierSynonyms lists the tag keys (lowercased) accepted as the
// album identifier, in priority order.
var albumIdentifierSynonyms = []string{
	"musicbrainz_albumid",
	"album_id",
	"albumid",
}

// Probe wraps the external Metadata probe executable.
type Probe struct {
	Path    string
	Timeout time.Duration
}

// NewProbe constructs a Probe. A zero timeout defaults to 30 seconds.
func NewProbe(path string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Probe{Path: path, Timeout: timeout}
}

// Metadata invokes the external probe and parses its structured output
// into model.Metadata. Absent fields are represented explicitly via the
// Has* flags rather than defaulted here -- defaulting is the quality
// scorer's job.
func (p *Probe) Metadata(ctx context.Context, path string) (model.Metadata, error) {
	cmd := exec.CommandContext(ctx, p.Path, path)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if isNotFoundErr(err) {
			return model.Metadata{}, &Failure{Kind: FailureToolMissing, Path: path, Err: err}
		}
		return model.Metadata{}, &Failure{Kind: FailureToolError, Path: path, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(p.Timeout):
		_ = cmd.Process.Kill()
		return model.Metadata{}, &Failure{Kind: FailureToolError, Path: path, Err: fmt.Errorf("metadata probe timed out after %v", p.Timeout)}
	case err := <-done:
		if err != nil {
			return model.Metadata{}, &Failure{Kind: FailureToolError, Path: path, Err: err, Stderr: stderr.String()}
		}
	}

	return parseProbeOutput(stdout.String())
}

// parseProbeOutput parses the probe's key=value-per-line document. A real
// ffprobe-alike emits a richer structured format; duperscooper only needs
// the keys it reads here, matched case-insensitively.
func parseProbeOutput(output string) (model.Metadata, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		fields[key] = val
	}

	md := model.Metadata{
		Codec:    fields["codec"],
		Channels: atoiOr(fields["channels"], 0),
	}

	if sr, ok := fields["sample_rate"]; ok {
		md.SampleRate = atoiOr(sr, 0)
	}
	if bd, ok := fields["bit_depth"]; ok && bd != "" {
		md.BitDepth = atoiOr(bd, 0)
		md.HasBitDepth = true
	}
	if br, ok := fields["bitrate"]; ok && br != "" {
		md.Bitrate = atoiOr(br, 0)
		md.HasBitrate = true
	}
	if l, ok := fields["lossless"]; ok {
		md.Lossless = l == "1" || strings.EqualFold(l, "true")
	}

	md.AlbumTag = fields["album"]
	md.ArtistTag = fields["artist"]
	for _, key := range albumIdentifierSynonyms {
		if v, ok := fields[key]; ok && v != "" {
			md.AlbumIdentifier = v
			break
		}
	}

	return md, nil
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
