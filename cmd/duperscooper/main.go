// Command duperscooper finds, groups, and optionally removes duplicate
// audio files and albums. See SPEC_FULL.md for the full command surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ohtostado/duperscooper/internal/album"
	"github.com/ohtostado/duperscooper/internal/apply"
	"github.com/ohtostado/duperscooper/internal/cache"
	"github.com/ohtostado/duperscooper/internal/config"
	"github.com/ohtostado/duperscooper/internal/errs"
	"github.com/ohtostado/duperscooper/internal/fingerprint"
	"github.com/ohtostado/duperscooper/internal/grouping"
	"github.com/ohtostado/duperscooper/internal/logging"
	"github.com/ohtostado/duperscooper/internal/matcher"
	"github.com/ohtostado/duperscooper/internal/metrics"
	"github.com/ohtostado/duperscooper/internal/model"
	"github.com/ohtostado/duperscooper/internal/rules"
	"github.com/ohtostado/duperscooper/internal/scanner"
	"github.com/ohtostado/duperscooper/internal/staging"
)

const (
	exitSuccess         = 0
	exitError           = 1
	exitDuplicatesFound = 2
	exitCancelled       = 130
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitError)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var code int
	switch sub {
	case "scan":
		code = runScan(args)
	case "apply":
		code = runApply(args)
	case "stage":
		code = runStage(args)
	case "restore":
		code = runRestore(args)
	case "list":
		code = runList(args)
	case "empty":
		code = runEmpty(args)
	case "update-cache":
		code = runUpdateCache(args)
	case "verify":
		code = runVerify(args)
	case "-h", "--help", "help":
		printUsage()
		code = exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "duperscooper: unknown command %q\n", sub)
		printUsage()
		code = exitError
	}
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`usage: duperscooper <command> [flags]

commands:
  scan           find duplicate tracks or albums
  apply          evaluate rules against a scan result and stage deletions
  stage          move files directly into staging (bypassing rules)
  restore        restore a staged batch by UUID
  list           list staging batches
  empty          permanently remove old staging batches
  update-cache   re-fingerprint a tree, refreshing the cache
  verify         check the fingerprint cache against its backing files`)
}

// setupLogging builds the process-wide logger from a level flag, matching
// the teacher's pattern of one shared logger initialized in main.
func setupLogging(level string) *logging.Logger {
	l := logging.NewLogger(logging.Config{Level: level})
	logging.InitGlobalLogger(l)
	return l
}

// notifyCancellation arranges for ctrl-c to cooperatively cancel ctx and
// stop s, per spec §5's cancellation model.
func notifyCancellation(s *scanner.TrackScanner) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		if s != nil {
			s.Stop()
		}
	}()
	return ctx, stop
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	root := fs.String("root", ".", "directory tree to scan")
	mode := fs.String("mode", "track", "track|album")
	algorithm := fs.String("algorithm", "", "exact|perceptual (track mode; defaults to config)")
	threshold := fs.Float64("threshold", -1, "similarity threshold percent (defaults to config)")
	albumStrategy := fs.String("strategy", "", "identifier|fingerprint|auto (album mode; defaults to config)")
	partial := fs.Bool("partial", false, "enable partial-album matching")
	minOverlap := fs.Float64("min-overlap", -1, "minimum track-overlap rate for partial mode")
	workers := fs.Int("workers", 0, "worker count (defaults to config)")
	configPath := fs.String("config", "", "path to a YAML/TOML config file")
	output := fs.String("output", "text", "record|flat|text")
	outFile := fs.String("out", "", "write output to this path instead of stdout")
	updateMode := fs.Bool("update", false, "bypass cache reads, still write back")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	applyScanOverrides(cfg, *workers, *algorithm, *threshold, *albumStrategy, *partial, *minOverlap)

	if err := fingerprint.ValidateTools(cfg.Tools.FingerprinterPath, cfg.Tools.MetadataProbePath); err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())

	cacheBackend, cacheErr := cache.Open(cfg.Cache, cfg.Scanner.Workers, log)
	if cacheErr != nil {
		log.Warnf("continuing without cache: %v", cacheErr)
	}
	if cacheBackend != nil {
		defer cacheBackend.Close()
		cacheBackend = cache.Instrument(cacheBackend, m)
	}

	tool := fingerprint.NewTool(cfg.Tools.FingerprinterPath, time.Duration(cfg.Tools.Timeout)*time.Second)
	probe := fingerprint.NewProbe(cfg.Tools.MetadataProbePath, time.Duration(cfg.Tools.Timeout)*time.Second)

	collector := &errs.Collector{}
	ts := &scanner.TrackScanner{Tool: tool, Probe: probe, Cache: cacheBackend, Workers: cfg.Scanner.Workers, Update: *updateMode, Collector: collector, Metrics: m}
	ctx, stop := notifyCancellation(ts)
	defer stop()

	var result apply.ScanResult
	var errCount int

	switch *mode {
	case "album":
		result, errCount = scanAlbums(ctx, *root, cfg, ts, cacheBackend, log)
	default:
		result, errCount = scanTracks(ctx, *root, cfg, ts, log)
	}
	m.GroupsFound.Add(float64(result.TotalGroups))

	if ctx.Err() != nil {
		log.Warn("scan cancelled by user")
		return exitCancelled
	}

	rendered, err := renderScanResult(result, *output)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	if err := writeOutput(*outFile, rendered); err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	printEndOfRunSummary(result, errCount, collector)

	if result.TotalDuplicates > 0 {
		return exitDuplicatesFound
	}
	return exitSuccess
}

func applyScanOverrides(cfg *config.AppConfig, workers int, algorithm string, threshold float64, albumStrategy string, partial bool, minOverlap float64) {
	if workers > 0 {
		cfg.Scanner.Workers = workers
	}
	if algorithm != "" {
		cfg.Grouping.Algorithm = algorithm
	}
	if threshold >= 0 {
		cfg.Grouping.Threshold = threshold
	}
	if albumStrategy != "" {
		cfg.Album.Strategy = albumStrategy
	}
	if partial {
		cfg.Album.Partial = true
	}
	if minOverlap >= 0 {
		cfg.Album.MinOverlapRate = minOverlap
	}
}

func scanTracks(ctx context.Context, root string, cfg *config.AppConfig, ts *scanner.TrackScanner, log *logging.Logger) (apply.ScanResult, int) {
	paths, err := scanner.Discover(root, int64(cfg.Scanner.MinSizeMiB)*1024*1024)
	if err != nil {
		log.Errorf("discovery failed: %v", err)
		return apply.ScanResult{}, 1
	}

	records, err := ts.Scan(ctx, paths)
	if err != nil {
		log.Errorf("scan failed: %v", err)
	}

	groups := grouping.Group(records, grouping.Options{
		Algorithm: grouping.Algorithm(cfg.Grouping.Algorithm),
		Threshold: cfg.Grouping.Threshold,
	})

	tracksByPath := make(map[string]*model.TrackRecord, len(records))
	for _, r := range records {
		tracksByPath[r.Path] = r
	}

	result := apply.BuildScanResult(apply.ModeTrack, groups, tracksByPath, nil)
	return result, int(ts.Progress(len(paths)).Errors)
}

func scanAlbums(ctx context.Context, root string, cfg *config.AppConfig, ts *scanner.TrackScanner, cacheBackend cache.Backend, log *logging.Logger) (apply.ScanResult, int) {
	albumScanner := &album.Scanner{Tracks: ts, Cache: cacheBackend}
	albums, err := albumScanner.ScanAll(ctx, root)
	if err != nil {
		log.Errorf("album scan failed: %v", err)
	}

	groups := matcher.Match(albums, matcher.Options{
		Strategy:       matcher.Strategy(cfg.Album.Strategy),
		Threshold:      cfg.Grouping.Threshold,
		Partial:        cfg.Album.Partial,
		MinOverlapRate: cfg.Album.MinOverlapRate,
	})

	albumsByPath := make(map[string]*model.Album, len(albums))
	for _, a := range albums {
		albumsByPath[a.Path] = a
	}

	result := apply.BuildScanResult(apply.ModeAlbum, groups, nil, albumsByPath)
	return result, int(ts.Progress(0).Errors)
}

func renderScanResult(result apply.ScanResult, shape string) ([]byte, error) {
	switch shape {
	case "record":
		return result.ToJSON()
	case "flat":
		return result.ToFlatCSV()
	default:
		return []byte(renderText(result)), nil
	}
}

func renderText(result apply.ScanResult) string {
	var b strings.Builder
	for i, g := range result.Groups {
		fmt.Fprintf(&b, "group %d (%s)", i+1, g.GroupID)
		if g.MatchedAlbum != "" {
			fmt.Fprintf(&b, " -- %s / %s", g.MatchedArtist, g.MatchedAlbum)
		}
		b.WriteString("\n")
		for _, it := range g.Items {
			marker := " "
			if it.IsBest {
				marker = "*"
			}
			fmt.Fprintf(&b, "  %s %s  %s  sim=%.1f%%  %s\n", marker, it.Path, it.QualityInfo, it.SimilarityToBest, it.RecommendedAction)
		}
	}
	fmt.Fprintf(&b, "\n%d groups, %d duplicates\n", result.TotalGroups, result.TotalDuplicates)
	return b.String()
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printEndOfRunSummary(result apply.ScanResult, errCount int, collector *errs.Collector) {
	var bytesReclaimable int64
	for _, g := range result.Groups {
		for _, it := range g.Items {
			if !it.IsBest {
				bytesReclaimable += it.Size
			}
		}
	}
	fmt.Fprintf(os.Stderr, "groups found: %d, duplicates: %d, errors: %d, bytes reclaimable: %d\n",
		result.TotalGroups, result.TotalDuplicates, errCount, bytesReclaimable)
	if collector != nil && collector.Count() > 0 {
		fmt.Fprintf(os.Stderr, "  per-file: %d  staging: %d\n",
			collector.CountByCategory(errs.CategoryPerFile), collector.CountByCategory(errs.CategoryStaging))
	}
}

func runApply(args []string) int {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	in := fs.String("in", "", "path to a serialized scan result (required)")
	strategy := fs.String("strategy", "eliminate-duplicates", "eliminate-duplicates|keep-lossless|keep-format|custom")
	format := fs.String("format", "", "format value for keep-format")
	rulesPath := fs.String("rules", "", "path to a custom rule config (required when strategy=custom)")
	execute := fs.Bool("execute", false, "actually stage deletions (default is dry-run)")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)

	if *in == "" {
		log.Error("fatal: -in is required")
		return exitError
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		log.Errorf("fatal: failed to read %s: %v", *in, err)
		return exitError
	}

	result, err := apply.LoadScanResult(data)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	var cfg *rules.Config
	if *strategy == "custom" {
		if *rulesPath == "" {
			log.Error("fatal: -rules is required when -strategy=custom")
			return exitError
		}
		cfg, err = rules.LoadConfig(*rulesPath)
	} else {
		cfg, err = rules.BuiltinStrategy(*strategy, *format)
	}
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	report := apply.Evaluate(result, cfg)
	for _, w := range report.Warnings {
		log.Warn(w)
	}

	fmt.Printf("%d items, %d marked for deletion, %d bytes reclaimable\n",
		report.TotalItems, report.TotalToDelete, report.BytesReclaimed)

	if !*execute {
		fmt.Println("dry-run: no files were moved. Pass -execute to stage deletions.")
		if report.TotalToDelete > 0 {
			return exitDuplicatesFound
		}
		return exitSuccess
	}

	toDelete := report.PathsToDelete()
	if len(toDelete) == 0 {
		return exitSuccess
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	outcome, err := staging.Stage(toDelete, string(result.Mode), m)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	for _, e := range outcome.Errors {
		log.Warn(e.Error())
	}
	fmt.Printf("staged batch %s: %d items\n", outcome.Manifest.BatchID, len(outcome.Manifest.Items))
	return exitSuccess
}

func runStage(args []string) int {
	fs := flag.NewFlagSet("stage", flag.ExitOnError)
	mode := fs.String("mode", "track", "track|album")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)
	paths := fs.Args()
	if len(paths) == 0 {
		log.Error("fatal: no paths given")
		return exitError
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	outcome, err := staging.Stage(paths, *mode, m)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	for _, e := range outcome.Errors {
		log.Warn(e.Error())
	}
	fmt.Printf("staged batch %s: %d items\n", outcome.Manifest.BatchID, len(outcome.Manifest.Items))
	return exitSuccess
}

func runRestore(args []string) int {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	root := fs.String("root", "", "staging root (.deletedByDuperscooper directory; required)")
	batchID := fs.String("batch", "", "batch UUID (required)")
	target := fs.String("target", "", "override restoration target root")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)
	if *root == "" || *batchID == "" {
		log.Error("fatal: -root and -batch are required")
		return exitError
	}

	batchDir, _, err := staging.Find(*root, *batchID)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	outcome, err := staging.Restore(batchDir, staging.RestoreOptions{TargetRoot: *target}, m)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	for _, e := range outcome.Errors {
		log.Warn(e.Error())
	}
	fmt.Printf("restored %d items, archived=%v\n", len(outcome.Restored), outcome.Archived)
	if len(outcome.Errors) > 0 {
		return exitDuplicatesFound
	}
	return exitSuccess
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	root := fs.String("root", "", "staging root (.deletedByDuperscooper directory; required)")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)
	if *root == "" {
		log.Error("fatal: -root is required")
		return exitError
	}

	batches, err := staging.List(*root)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	for _, b := range batches {
		fmt.Printf("%s  age=%s  mode=%s  items=%d  size=%d  restored=%s  archived=%v\n",
			b.BatchID, b.Age.Round(time.Second), b.Mode, b.ItemCount, b.TotalSize, b.RestorationState, b.Archived)
	}
	return exitSuccess
}

func runEmpty(args []string) int {
	fs := flag.NewFlagSet("empty", flag.ExitOnError)
	root := fs.String("root", "", "staging root (.deletedByDuperscooper directory; required)")
	olderThan := fs.Duration("older-than", 0, "remove batches older than this duration")
	keepRecent := fs.Int("keep-recent", 0, "keep only the N most recently created batches")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)
	if *root == "" {
		log.Error("fatal: -root is required")
		return exitError
	}

	removed, err := staging.Empty(*root, staging.EmptyOptions{OlderThan: *olderThan, KeepMostRecent: *keepRecent})
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	fmt.Printf("removed %d batches\n", len(removed))
	return exitSuccess
}

func runUpdateCache(args []string) int {
	fs := flag.NewFlagSet("update-cache", flag.ExitOnError)
	root := fs.String("root", ".", "directory tree to re-fingerprint")
	configPath := fs.String("config", "", "path to a YAML/TOML config file")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	if err := fingerprint.ValidateTools(cfg.Tools.FingerprinterPath, cfg.Tools.MetadataProbePath); err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())

	cacheBackend, cacheErr := cache.Open(cfg.Cache, cfg.Scanner.Workers, log)
	if cacheErr != nil {
		log.Warnf("continuing without cache: %v", cacheErr)
	}
	if cacheBackend != nil {
		defer cacheBackend.Close()
		cacheBackend = cache.Instrument(cacheBackend, m)
	}

	tool := fingerprint.NewTool(cfg.Tools.FingerprinterPath, time.Duration(cfg.Tools.Timeout)*time.Second)
	probe := fingerprint.NewProbe(cfg.Tools.MetadataProbePath, time.Duration(cfg.Tools.Timeout)*time.Second)
	collector := &errs.Collector{}
	ts := &scanner.TrackScanner{Tool: tool, Probe: probe, Cache: cacheBackend, Workers: cfg.Scanner.Workers, Update: true, Collector: collector, Metrics: m}

	ctx, stop := notifyCancellation(ts)
	defer stop()

	paths, err := scanner.Discover(*root, int64(cfg.Scanner.MinSizeMiB)*1024*1024)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	records, err := ts.Scan(ctx, paths)
	if err != nil {
		log.Errorf("update-cache failed: %v", err)
		return exitError
	}

	if ctx.Err() != nil {
		return exitCancelled
	}

	fmt.Printf("re-fingerprinted %d of %d files, %d errors\n", len(records), len(paths), collector.Count())
	return exitSuccess
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML/TOML config file")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	_ = fs.Parse(args)

	log := setupLogging(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	cacheBackend, err := cache.Open(cfg.Cache, cfg.Scanner.Workers, log)
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}
	if cacheBackend == nil {
		log.Error("fatal: no cache is configured, nothing to verify")
		return exitError
	}
	defer cacheBackend.Close()

	report, err := cacheBackend.VerifyConsistency()
	if err != nil {
		log.Errorf("fatal: %v", err)
		return exitError
	}

	fmt.Printf("cache entries: %d, verified: %d, stale: %d, missing: %d, integrity: %.1f%%\n",
		report.TotalEntries, report.VerifiedEntries, report.StaleEntries, report.MissingEntries, report.IntegrityScore())

	if report.StaleEntries > 0 || report.MissingEntries > 0 {
		return exitDuplicatesFound
	}
	return exitSuccess
}
