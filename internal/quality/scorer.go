// Package quality implements the deterministic quality score and
// human-readable format string derived from a track's probed metadata.
package quality

import (
	"fmt"
	"strings"

	"github.com/ohtostado/duperscooper/internal/model"
)

const (
	defaultBitDepth   = 16
	defaultSampleRate = 44100
	defaultBitrate    = 0

	// losslessOffset guarantees any lossless file outranks any lossy one:
	// the smallest lossless score (bit depth 0, sample rate 0) is still
	// above the largest plausible lossy score.
	losslessOffset = 10000.0
)

// Score computes the deterministic quality score for md.
//
// Lossless: 10000 + bit_depth*100 + sample_rate_hz/1000.
// Lossy: bitrate_bits_per_s / 1000 (kbps).
func Score(md model.Metadata) float64 {
	bitDepth := defaultBitDepth
	if md.HasBitDepth {
		bitDepth = md.BitDepth
	}
	sampleRate := defaultSampleRate
	if md.SampleRate > 0 {
		sampleRate = md.SampleRate
	}
	bitrate := defaultBitrate
	if md.HasBitrate {
		bitrate = md.Bitrate
	}

	if md.Lossless {
		return losslessOffset + float64(bitDepth)*100 + float64(sampleRate)/1000
	}
	return float64(bitrate) / 1000
}

// FormatString renders a fixed-pattern human-readable quality string, e.g.
// "FLAC 44.1kHz 16bit" or "MP3 CBR 320kbps".
func FormatString(md model.Metadata) string {
	codec := strings.ToUpper(md.Codec)
	if codec == "" {
		codec = "UNKNOWN"
	}

	if md.Lossless {
		sampleRate := defaultSampleRate
		if md.SampleRate > 0 {
			sampleRate = md.SampleRate
		}
		bitDepth := defaultBitDepth
		if md.HasBitDepth {
			bitDepth = md.BitDepth
		}
		return fmt.Sprintf("%s %.1fkHz %dbit", codec, float64(sampleRate)/1000, bitDepth)
	}

	bitrate := defaultBitrate
	if md.HasBitrate {
		bitrate = md.Bitrate
	}
	return fmt.Sprintf("%s CBR %dkbps", codec, bitrate/1000)
}
