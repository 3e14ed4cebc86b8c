package cache

import (
	"fmt"

	"github.com/ohtostado/duperscooper/internal/config"
	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/logging"
)

// Open constructs the configured Backend. When the chosen backend fails to
// open, Open logs a warning and returns a nil Backend together with a
// cache-category *errs.Error: per spec §4.1, corruption or open failure on
// the durable backend is a non-fatal condition that degrades the process
// to compute-without-cache, so callers treat a nil Backend as "proceed
// without a cache". An unknown backend name also yields a nil Backend and
// a cache-category error, without a log line.
func Open(cfg config.CacheConfig, workers int, log *logging.Logger) (Backend, error) {
	if cfg.Disable {
		return nil, nil
	}

	switch cfg.Backend {
	case "flatfile":
		b, err := NewFlatFileBackend(cfg.Path)
		if err != nil {
			log.Warnf("cache: failed to open flat-file backend, continuing without cache: %v", err)
			return nil, errs.Cache(err)
		}
		return b, nil
	case "sqlite", "":
		b, err := NewSQLiteBackend(cfg.Path, workers)
		if err != nil {
			log.Warnf("cache: failed to open sqlite backend, continuing without cache: %v", err)
			return nil, errs.Cache(err)
		}
		return b, nil
	default:
		return nil, errs.Cache(fmt.Errorf("unknown cache backend %q", cfg.Backend))
	}
}
