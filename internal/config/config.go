package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CacheConfig controls the fingerprint/album cache.
type CacheConfig struct {
	Backend string // "sqlite" (durable, default) or "flatfile" (legacy)
	Path    string
	Disable bool
}

// ToolsConfig locates the external Fingerprinter and Metadata probe
// executables.
type ToolsConfig struct {
	FingerprinterPath string
	MetadataProbePath string
	Timeout           int // seconds
}

// ScannerConfig controls track discovery and fingerprinting.
type ScannerConfig struct {
	Workers    int
	MinSizeMiB int // 0 disables the size filter
	UpdateMode bool
}

// GroupingConfig controls the duplicate grouper.
type GroupingConfig struct {
	Algorithm string // "exact" or "perceptual"
	Threshold float64
}

// AlbumConfig controls album matching.
type AlbumConfig struct {
	Strategy       string // "identifier", "fingerprint", "auto"
	Partial        bool
	MinOverlapRate float64
}

// StagingConfig controls the staging/restoration engine.
type StagingConfig struct {
	RootDirName string // ".deletedByDuperscooper" by default
}

// RulesConfig controls the rules engine and apply pipeline.
type RulesConfig struct {
	Strategy      string // "eliminate-duplicates", "keep-lossless", "keep-format", "custom"
	Format        string
	ConfigPath    string
	DefaultAction string // "keep" or "delete"
}

// AppConfig is the root configuration object, populated by viper from
// defaults, an optional config file, and DUPERSCOOPER_-prefixed
// environment variables, in that order of increasing precedence.
type AppConfig struct {
	Cache    CacheConfig
	Tools    ToolsConfig
	Scanner  ScannerConfig
	Grouping GroupingConfig
	Album    AlbumConfig
	Staging  StagingConfig
	Rules    RulesConfig
}

// Load builds an AppConfig from defaults, the config file at configPath (if
// non-empty and present), and environment overrides, then validates it.
func Load(configPath string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DUPERSCOOPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	configDir := filepath.Join(home, ".config", "duperscooper")

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", filepath.Join(configDir, "cache.db"))
	v.SetDefault("cache.disable", false)

	v.SetDefault("tools.fingerprinterpath", "fpcalc")
	v.SetDefault("tools.metadataprobepath", "ffprobe")
	v.SetDefault("tools.timeout", 60)

	v.SetDefault("scanner.workers", 8)
	v.SetDefault("scanner.minsizemib", 1)
	v.SetDefault("scanner.updatemode", false)

	v.SetDefault("grouping.algorithm", "perceptual")
	v.SetDefault("grouping.threshold", 97.0)

	v.SetDefault("album.strategy", "auto")
	v.SetDefault("album.partial", false)
	v.SetDefault("album.minoverlaprate", 0.5)

	v.SetDefault("staging.rootdirname", ".deletedByDuperscooper")

	v.SetDefault("rules.strategy", "eliminate-duplicates")
	v.SetDefault("rules.defaultaction", "keep")
}

// validateConfig turns out-of-range thresholds and nonsensical values into
// fatal startup errors. It does not probe for the external tool
// executables on PATH -- that check belongs to fingerprint.ValidateTools,
// run once per command that actually needs the tools.
func validateConfig(cfg *AppConfig) error {
	if cfg.Grouping.Threshold < 0 || cfg.Grouping.Threshold > 100 {
		return fmt.Errorf("grouping.threshold must be in [0, 100], got %v", cfg.Grouping.Threshold)
	}
	if cfg.Grouping.Algorithm != "exact" && cfg.Grouping.Algorithm != "perceptual" {
		return fmt.Errorf("grouping.algorithm must be 'exact' or 'perceptual', got %q", cfg.Grouping.Algorithm)
	}
	if cfg.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be >= 1, got %d", cfg.Scanner.Workers)
	}
	switch cfg.Album.Strategy {
	case "identifier", "fingerprint", "auto":
	default:
		return fmt.Errorf("album.strategy must be one of identifier|fingerprint|auto, got %q", cfg.Album.Strategy)
	}
	if cfg.Album.MinOverlapRate < 0 || cfg.Album.MinOverlapRate > 1 {
		return fmt.Errorf("album.minoverlaprate must be in [0, 1], got %v", cfg.Album.MinOverlapRate)
	}
	if cfg.Cache.Backend != "sqlite" && cfg.Cache.Backend != "flatfile" {
		return fmt.Errorf("cache.backend must be 'sqlite' or 'flatfile', got %q", cfg.Cache.Backend)
	}
	if cfg.Rules.DefaultAction != "keep" && cfg.Rules.DefaultAction != "delete" {
		return fmt.Errorf("rules.defaultaction must be 'keep' or 'delete', got %q", cfg.Rules.DefaultAction)
	}
	return nil
}
