package scanner

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ohtostado/duperscooper/internal/cache"
	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/fingerprint"
	"github.com/ohtostado/duperscooper/internal/logging"
	"github.com/ohtostado/duperscooper/internal/metrics"
	"github.com/ohtostado/duperscooper/internal/model"
	"github.com/ohtostado/duperscooper/internal/quality"
	"github.com/ohtostado/duperscooper/internal/utils"
)

// Progress is a snapshot of scan progress, safe to read at any time.
type Progress struct {
	Completed int
	Total     int
	Errors    int64
	ETA       time.Duration
}

// TrackScanner fingerprints a set of discovered files using a bounded
// worker pool, consulting the cache before invoking the external
// fingerprinter. Workers run concurrently, but the returned TrackRecord
// sequence is re-sorted to input order before being handed back, so
// grouping is deterministic regardless of completion order.
type TrackScanner struct {
	Tool      *fingerprint.Tool
	Probe     *fingerprint.Probe
	Cache     cache.Backend // may be nil: compute-without-cache
	Workers   int
	Update    bool // update-cache mode: bypass cache reads, still writes back
	Collector *errs.Collector   // optional: accumulates per-file failures for the end-of-run summary
	Metrics   *metrics.Metrics // optional: process-wide counters and histograms

	mu        sync.Mutex
	completed int
	started   time.Time
	errorCnt  int64
	stop      int32 // cooperative cancellation flag, checked between files
}

// Stop requests cooperative cancellation: in-flight workers finish their
// current file, then drain without starting new work.
func (s *TrackScanner) Stop() { atomic.StoreInt32(&s.stop, 1) }

func (s *TrackScanner) stopped() bool { return atomic.LoadInt32(&s.stop) != 0 }

// Progress returns a snapshot of the scanner's progress counters.
func (s *TrackScanner) Progress(total int) Progress {
	s.mu.Lock()
	completed := s.completed
	started := s.started
	s.mu.Unlock()

	p := Progress{Completed: completed, Total: total, Errors: atomic.LoadInt64(&s.errorCnt)}
	if completed > 0 && !started.IsZero() {
		elapsed := time.Since(started)
		perFile := elapsed / time.Duration(completed)
		remaining := total - completed
		if remaining > 0 {
			p.ETA = perFile * time.Duration(remaining)
		}
	}
	return p
}

type indexedResult struct {
	index  int
	record *model.TrackRecord
	failed bool
}

// Scan fingerprints every path in paths (assumed already in the desired
// deterministic order) and returns the successfully-produced TrackRecords
// in that same order. Paths whose fingerprinting failed are omitted from
// the result but still counted in the error counter.
//
// Workers == 1 runs a single worker goroutine, so files are processed one
// at a time; Workers > 1 fans out across a bounded pool of goroutines,
// matching the cooperative-parallel model of spec §4.4 (the workload is
// I/O-bound on an external process, not CPU-bound, so OS-thread-backed
// goroutines are an adequate stand-in for the pool).
func (s *TrackScanner) Scan(ctx context.Context, paths []string) ([]*model.TrackRecord, error) {
	s.mu.Lock()
	s.started = time.Now()
	s.completed = 0
	s.mu.Unlock()

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(paths))
	results := make(chan indexedResult, len(paths))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if s.stopped() {
					results <- indexedResult{index: idx, failed: true}
					continue
				}
				rec, err := s.scanOne(ctx, paths[idx])
				s.mu.Lock()
				s.completed++
				s.mu.Unlock()
				if err != nil {
					atomic.AddInt64(&s.errorCnt, 1)
					results <- indexedResult{index: idx, failed: true}
					continue
				}
				results <- indexedResult{index: idx, record: rec}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*model.TrackRecord, len(paths))
	for r := range results {
		if !r.failed {
			ordered[r.index] = r.record
		}
	}

	out := make([]*model.TrackRecord, 0, len(paths))
	for _, rec := range ordered {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// scanOne applies the cache policy from spec §4.4: compute content hash,
// reuse a cache hit unless in update mode, else invoke the fingerprinter
// and write back on success.
func (s *TrackScanner) scanOne(ctx context.Context, path string) (*model.TrackRecord, error) {
	hash, err := utils.SHA256File(path)
	if err != nil {
		return nil, s.reportScanError(path, "hash", err)
	}

	var fp model.Fingerprint
	var fromCache bool
	if s.Cache != nil && !s.Update {
		if cached, ok, err := s.Cache.Get(hash); err == nil && ok {
			fp, fromCache = cached, true
		}
	}

	if !fromCache {
		fpStart := time.Now()
		computed, err := s.Tool.Fingerprint(ctx, path)
		if s.Metrics != nil {
			s.Metrics.FingerprintTime.Observe(time.Since(fpStart).Seconds())
		}
		if err != nil {
			return nil, s.reportScanError(path, "fingerprint", err)
		}
		fp = computed
		if s.Cache != nil {
			var mtime time.Time
			if fi, statErr := os.Stat(path); statErr == nil {
				mtime = fi.ModTime()
			}
			_ = s.Cache.Set(hash, path, fp, "chromaprint", mtime)
		}
	}

	md, err := s.Probe.Metadata(ctx, path)
	if err != nil {
		return nil, s.reportScanError(path, "metadata", err)
	}

	rec := &model.TrackRecord{
		Path:        path,
		ContentHash: hash,
		Fingerprint: fp,
		Metadata:    md,
	}
	if info, statErr := statSize(path); statErr == nil {
		rec.Size = info
	}
	rec.QualityScore = quality.Score(md)
	rec.QualityString = quality.FormatString(md)

	if s.Metrics != nil {
		s.Metrics.FilesScanned.Inc()
	}

	return rec, nil
}

// reportScanError logs a per-file failure at Warn and, if a Collector is
// attached, accumulates it for the end-of-run summary, then returns err
// unchanged so callers keep their existing control flow.
func (s *TrackScanner) reportScanError(path, category string, err error) error {
	logging.LogScanError(path, category, err)
	if s.Collector != nil {
		s.Collector.Add(errs.PerFile(path, err))
	}
	if s.Metrics != nil {
		s.Metrics.ScanErrors.WithLabelValues(category).Inc()
	}
	return err
}

func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
