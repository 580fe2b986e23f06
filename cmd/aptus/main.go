package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/pipeline"
	"github.com/ternarybob/aptus/internal/services/coordination"
	"github.com/ternarybob/aptus/internal/services/embedder"
	"github.com/ternarybob/aptus/internal/services/extractor"
	"github.com/ternarybob/aptus/internal/services/ingest"
	"github.com/ternarybob/aptus/internal/services/llm"
	"github.com/ternarybob/aptus/internal/services/matcher"
	"github.com/ternarybob/aptus/internal/services/matches"
	"github.com/ternarybob/aptus/internal/services/notify"
	"github.com/ternarybob/aptus/internal/services/resume"
	"github.com/ternarybob/aptus/internal/services/scorer"
	"github.com/ternarybob/aptus/internal/services/scraper"
	storagebadger "github.com/ternarybob/aptus/internal/storage/badger"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (default: ./aptus.toml)")
	modeFlag    = flag.String("mode", "all", "Pipeline mode: all, etl or matching")
	runOnce     = flag.Bool("once", false, "Run a single cycle and exit")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Aptus version %s\n", common.GetVersion())
		os.Exit(0)
	}

	mode, err := pipeline.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Startup order: config, logger, banner, storage, services
	path := *configPath
	if path == "" {
		if _, err := os.Stat("aptus.toml"); err == nil {
			path = "aptus.toml"
		}
	}
	config, err := common.LoadFromFile(path)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Debug().
		Str("database", config.Database.URL).
		Str("llm_base_url", config.ETL.LLM.BaseURL).
		Str("log_level", config.Logging.Level).
		Int("scrapers", len(config.Scrapers)).
		Msg("Configuration loaded")

	if err := run(config, mode, logger); err != nil {
		logger.Fatal().Err(err).Msg("Aptus failed")
		os.Exit(1)
	}
}

func run(config *common.Config, mode pipeline.Mode, logger arbor.ILogger) error {
	ctx := context.Background()
	stop := common.NewStop(ctx)

	db, err := storagebadger.NewDB(logger, &config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	jobStore := storagebadger.NewJobStorage(db, logger)
	reqStore := storagebadger.NewRequirementStorage(db, logger)
	facetStore := storagebadger.NewFacetStorage(db, logger)
	resumeStore := storagebadger.NewResumeStorage(db, logger)
	matchStore := storagebadger.NewMatchStorage(db, logger)
	notificationStore := storagebadger.NewNotificationStorage(db, logger)

	llmClient := llm.NewClient(&config.ETL.LLM, logger)
	scraperClient := scraper.NewClient(&config.JobSpy, logger)

	var coordinationStore interfaces.CoordinationStore
	if config.Notifications.RedisURL != "" {
		redisStore, err := coordination.NewRedisStore(ctx, config.Notifications.RedisURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Coordination store unavailable, using in-process fallback")
			coordinationStore = coordination.NewMemoryStore()
		} else {
			defer redisStore.Close()
			coordinationStore = redisStore
		}
	} else {
		coordinationStore = coordination.NewMemoryStore()
	}

	notifier := notify.NewDispatcher(&config.Notifications, notificationStore, coordinationStore, logger)
	defer notifier.Close()

	deps := pipeline.Deps{
		Scraper:     scraperClient,
		Ingest:      ingest.NewService(jobStore, matchStore, config.Matching.InvalidateOnJobChange, logger),
		Extractor:   extractor.NewService(jobStore, reqStore, llmClient, &config.ETL, logger),
		FacetWorker: extractor.NewFacetWorker(jobStore, facetStore, llmClient, &config.ETL.Facets, &config.ETL.LLM, logger),
		Embedder:    embedder.NewService(jobStore, reqStore, llmClient, logger),
		Profiler:    resume.NewProfiler(resumeStore, llmClient, &config.ETL.Resume, logger),
		Matcher:     matcher.NewMatcher(matchStore, reqStore, resumeStore, &config.Matching.Matcher, config.Matching.Scorer.WantsRemote, logger),
		Scorer:      scorer.NewScorer(&config.Matching.Scorer, facetStore, llmClient, logger),
		Matches:     matches.NewService(matchStore, config.Matching.RecalculateExisting, logger),
		MatchStore:  matchStore,
		Notifier:    notifier,
	}
	p := pipeline.New(config, deps, logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info().Str("signal", sig.String()).Msg("Shutdown requested")
		stop.Fire()
	}()

	if *runOnce {
		_, err := p.RunCycle(ctx, mode, stop)
		return err
	}

	scheduler := pipeline.NewScheduler(p, mode, config.Schedule.IntervalSeconds, logger)
	if err := scheduler.Start(ctx, stop); err != nil {
		return err
	}
	<-stop.Done()
	scheduler.Stop()
	return nil
}
