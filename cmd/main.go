package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/busyness-collector/internal/aggregator"
	"github.com/busyness-collector/internal/api"
	"github.com/busyness-collector/internal/apiclient"
	"github.com/busyness-collector/internal/browser"
	"github.com/busyness-collector/internal/checker"
	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/pool"
	"github.com/busyness-collector/internal/report"
	"github.com/busyness-collector/internal/runner"
	"github.com/busyness-collector/internal/scraper"
	"github.com/busyness-collector/internal/snapshot"
	"github.com/busyness-collector/internal/storage"
	"github.com/busyness-collector/internal/types"
	"github.com/busyness-collector/internal/venues"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const version = "1.0.0"

// previous runs older than this are not served after a restart
const maxRestoredAge = 24 * time.Hour

func main() {
	os.Exit(execute())
}

func execute() int {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to read .env: %v", err)
	}

	configPath := os.Getenv("BUSYNESS_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		return report.ExitFatal
	}
	applyLogging(cfg.Logging)

	log.Infof("Starting busyness collector v%s", version)

	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace)

	store, err := storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Errorf("Failed to initialize storage: %v", err)
		return report.ExitFatal
	}
	defer store.Close()

	snapshotMgr := snapshot.NewManager(store)
	defer snapshotMgr.Close()

	if err := snapshotMgr.LoadFromStorage(maxRestoredAge); err != nil {
		log.Warnf("Failed to load previous run: %v (starting fresh)", err)
	}

	agg := aggregator.NewAggregator(cfg.Aggregator, cfg.Pool.MaxCandidates, metricsCollector)
	chk := checker.NewChecker(cfg.Checker, metricsCollector)

	proxyPool := pool.New(cfg.Pool, agg, chk, metricsCollector)
	defer func() {
		proxyPool.Close()
		stats := proxyPool.Stats()
		log.WithFields(log.Fields{
			"served":    stats.Served,
			"exhausted": stats.Exhausted,
			"validated": stats.ValidatedTotal,
		}).Info("Proxy pool closed")
	}()

	orchestrator := scraper.NewOrchestrator(cfg.Scraper, cfg.Browser, proxyPool,
		browser.NewChrome(cfg.Browser), metricsCollector)

	bestTimeKey := os.Getenv(cfg.Clients.BestTimeKeyEnv)
	if bestTimeKey == "" {
		log.Warnf("%s not set, BestTime venues will be skipped", cfg.Clients.BestTimeKeyEnv)
	}

	resolvers := map[string]runner.Resolver{
		types.SourceScrape:     runner.ResolverFunc(orchestrator.Run),
		types.SourcePizzaWatch: apiclient.NewPizzaWatch(cfg.Clients),
		types.SourceBestTime:   apiclient.NewBestTime(cfg.Clients, bestTimeKey),
	}

	venueList := venues.Resolve(cfg.Venues)
	log.Infof("Loaded %d venues", len(venueList))

	r := runner.New(venueList, resolvers, snapshotMgr)
	r.OnComplete(func(run *types.Run) {
		if err := report.Write(os.Stdout, run.Report); err != nil {
			log.Errorf("Failed to write report: %v", err)
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduled := cfg.Schedule.IntervalSeconds > 0

	if scheduled || cfg.API.Enabled {
		apiServer := api.NewServer(cfg, snapshotMgr, metricsCollector, proxyPool, r)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("API server failed: %v", err)
				cancel()
			}
		}()
		defer shutdownServer(apiServer)
	}

	if !scheduled {
		run, err := r.RunOnce(ctx)
		if err != nil {
			log.Errorf("Run failed: %v", err)
			return report.ExitFatal
		}
		return run.ExitCode
	}

	go watchReload(ctx, cfg)

	interval := time.Duration(cfg.Schedule.IntervalSeconds) * time.Second
	log.Infof("Scheduled mode: running every %v", interval)
	r.Loop(ctx, interval)

	log.Info("Shutting down gracefully...")
	return report.ExitOK
}

func applyLogging(cfg config.LoggingConfig) {
	if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
}

// watchReload re-reads the config file on SIGHUP. Only logging settings
// take effect without a restart.
func watchReload(ctx context.Context, cfg *config.Config) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cfg.Reload(); err != nil {
				log.Errorf("Config reload failed: %v", err)
				continue
			}
			applyLogging(cfg.Logging)
			log.Info("Configuration reloaded")
		}
	}
}

func shutdownServer(s *api.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}
}
