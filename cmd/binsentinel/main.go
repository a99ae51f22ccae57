package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/binsentinel/internal/analyzer"
	"github.com/raaihank/binsentinel/internal/config"
	"github.com/raaihank/binsentinel/internal/logger"
	"github.com/raaihank/binsentinel/internal/model"
	"github.com/raaihank/binsentinel/internal/watch"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// main delegates to run so deferred cleanup (backend session, cache
// connection, log flush) executes before the process exits.
func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		watchMode   = flag.Bool("watch", false, "Watch the configured drop directory instead of scanning arguments")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("BinSentinel %s (commit: %s, built: %s)\n", version, commit, date)
		return 0
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting BinSentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
	)

	// Load the model artifact; absence degrades to heuristic mode
	state := model.LoadOrAbsent(cfg.Model.Path, cfg.Analysis.FeatureSize, log.WithComponent("model").Logger)

	service, err := analyzer.New(cfg, state, log)
	if err != nil {
		log.Error("Failed to create analysis pipeline", zap.Error(err))
		return 1
	}
	defer service.Close()

	encoder := json.NewEncoder(os.Stdout)

	if *watchMode {
		return runWatch(cfg, service, encoder, log)
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: binsentinel [flags] <file>... or binsentinel -watch")
		return 2
	}

	return scanFiles(service, files, encoder, log)
}

// scanFiles scans each file and writes its record; any failure turns into a
// non-zero exit code after all files are attempted.
func scanFiles(service *analyzer.Service, files []string, encoder *json.Encoder, log *logger.Logger) int {
	exitCode := 0
	for _, path := range files {
		record, err := service.AnalyzeFile(context.Background(), path)
		if err != nil {
			log.Error("Scan failed", zap.String("file", path), zap.Error(err))
			exitCode = 1
			continue
		}
		if err := encoder.Encode(record); err != nil {
			log.Error("Failed to write scan record", zap.Error(err))
			exitCode = 1
		}
	}
	return exitCode
}

// runWatch monitors the drop directory until interrupted.
func runWatch(cfg *config.Config, service *analyzer.Service, encoder *json.Encoder, log *logger.Logger) int {
	if cfg.Watch.Directory == "" {
		log.Error("Watch mode requires watch.directory to be configured")
		return 1
	}

	// Scan workers complete concurrently; serialize record output.
	var mu sync.Mutex
	watcher, err := watch.New(cfg.Watch, service, func(record *analyzer.Record) {
		mu.Lock()
		defer mu.Unlock()
		if err := encoder.Encode(record); err != nil {
			log.Error("Failed to write scan record", zap.Error(err))
		}
	}, log.WithComponent("watch").Logger)
	if err != nil {
		log.Error("Failed to start drop directory watcher", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	watcherErrors := make(chan error, 1)
	go func() {
		log.Info("Watching drop directory", zap.String("directory", cfg.Watch.Directory))
		watcherErrors <- watcher.Run(ctx)
	}()

	select {
	case err := <-watcherErrors:
		if err != nil {
			log.Error("Watcher error", zap.Error(err))
			return 1
		}
		return 0
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		if err := <-watcherErrors; err != nil && err != context.Canceled {
			log.Error("Failed to stop watcher cleanly", zap.Error(err))
		}
		log.Info("Shutdown complete")
		return 0
	}
}
