package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
	"github.com/ternarybob/aptus/internal/services/embedder"
	"github.com/ternarybob/aptus/internal/services/extractor"
	"github.com/ternarybob/aptus/internal/services/ingest"
	"github.com/ternarybob/aptus/internal/services/matcher"
	"github.com/ternarybob/aptus/internal/services/matches"
	"github.com/ternarybob/aptus/internal/services/resume"
	"github.com/ternarybob/aptus/internal/services/scorer"
)

// Mode selects which pipeline stages a cycle runs
type Mode string

const (
	ModeAll      Mode = "all"
	ModeETL      Mode = "etl"
	ModeMatching Mode = "matching"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAll, ModeETL, ModeMatching:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want all, etl or matching)", s)
}

// CycleResult aggregates the counters of one pipeline cycle
type CycleResult struct {
	Scraped        int
	Created        int
	Updated        int
	Changed        int
	Extracted      int
	Embedded       int
	FacetsDone     int
	Candidates     int
	MatchesCreated int
	MatchesUpdated int
	Notified       int
	Duration       time.Duration
}

// Summary renders the one-line cycle summary used in logs and batch
// notifications
func (r *CycleResult) Summary() string {
	return fmt.Sprintf("scraped=%d created=%d updated=%d extracted=%d embedded=%d facets=%d matches=%d/%d notified=%d in %s",
		r.Scraped, r.Created, r.Updated, r.Extracted, r.Embedded, r.FacetsDone,
		r.MatchesCreated, r.MatchesUpdated, r.Notified, r.Duration.Round(time.Millisecond))
}

// Pipeline wires the stages into scheduled cycles. Stages share one stop
// signal: firing it lets the current item finish and skips the rest.
type Pipeline struct {
	config      *common.Config
	scraper     interfaces.ScraperClient
	ingest      *ingest.Service
	extractor   *extractor.Service
	facetWorker *extractor.FacetWorker
	embedder    *embedder.Service
	profiler    *resume.Profiler
	matcher     *matcher.Matcher
	scorer      *scorer.Scorer
	matches     *matches.Service
	matchStore  interfaces.MatchStore
	notifier    interfaces.Notifier
	logger      arbor.ILogger

	lastResumeFingerprint string
}

// Deps carries the wired services for the pipeline
type Deps struct {
	Scraper     interfaces.ScraperClient
	Ingest      *ingest.Service
	Extractor   *extractor.Service
	FacetWorker *extractor.FacetWorker
	Embedder    *embedder.Service
	Profiler    *resume.Profiler
	Matcher     *matcher.Matcher
	Scorer      *scorer.Scorer
	Matches     *matches.Service
	MatchStore  interfaces.MatchStore
	Notifier    interfaces.Notifier
}

// New creates a pipeline from its wired dependencies
func New(config *common.Config, deps Deps, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		config:      config,
		scraper:     deps.Scraper,
		ingest:      deps.Ingest,
		extractor:   deps.Extractor,
		facetWorker: deps.FacetWorker,
		embedder:    deps.Embedder,
		profiler:    deps.Profiler,
		matcher:     deps.Matcher,
		scorer:      deps.Scorer,
		matches:     deps.Matches,
		matchStore:  deps.MatchStore,
		notifier:    deps.Notifier,
		logger:      logger,
	}
}

// RunCycle executes one full cycle in the given mode. Stage failures are
// logged and the cycle continues with whatever data is available; only
// setup-level failures abort.
func (p *Pipeline) RunCycle(ctx context.Context, mode Mode, stop *common.Stop) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{}

	p.logger.Info().Str("mode", string(mode)).Msg("Pipeline cycle starting")

	if mode == ModeAll || mode == ModeETL {
		p.runETL(ctx, result, stop)
	}
	if (mode == ModeAll || mode == ModeMatching) && p.config.Matching.Enabled {
		if stop == nil || !stop.Fired() {
			if err := p.runMatching(ctx, result, stop); err != nil {
				p.logger.Error().Err(err).Msg("Matching stage failed")
			}
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info().Str("summary", result.Summary()).Msg("Pipeline cycle complete")

	if p.notifier != nil {
		if err := p.notifier.NotifyBatchComplete(ctx, result.Summary()); err != nil {
			p.logger.Warn().Err(err).Msg("Batch summary notification failed")
		}
	}
	return result, nil
}

func (p *Pipeline) runETL(ctx context.Context, result *CycleResult, stop *common.Stop) {
	p.runScrapers(ctx, result, stop)

	if stop != nil && stop.Fired() {
		return
	}
	batchSize := p.config.Matching.Matcher.BatchSize
	if extracted, err := p.extractor.ProcessPending(ctx, batchSize, stop); err != nil {
		p.logger.Error().Err(err).Msg("Requirement extraction stage failed")
	} else {
		result.Extracted = extracted.Processed
	}

	if stop != nil && stop.Fired() {
		return
	}
	if embedded, err := p.embedder.ProcessPending(ctx, batchSize, stop); err != nil {
		p.logger.Error().Err(err).Msg("Embedding stage failed")
	} else {
		result.Embedded = embedded.Processed
	}

	if stop != nil && stop.Fired() {
		return
	}
	if facets, err := p.facetWorker.Run(ctx, stop); err != nil {
		p.logger.Error().Err(err).Msg("Facet stage failed")
	} else {
		result.FacetsDone = facets.Processed
	}
}

func (p *Pipeline) runScrapers(ctx context.Context, result *CycleResult, stop *common.Stop) {
	for _, scraperConfig := range p.config.Scrapers {
		if stop != nil && stop.Fired() {
			return
		}

		taskID, err := p.scraper.Submit(ctx, scraperConfig)
		if err != nil {
			p.logger.Error().
				Err(err).
				Str("search_term", scraperConfig.SearchTerm).
				Msg("Scrape submission failed, continuing with next scraper")
			continue
		}

		raws, err := p.scraper.WaitForResult(ctx, taskID, stop)
		if err != nil {
			p.logger.Error().Err(err).Str("task_id", taskID).Msg("Scrape wait failed")
			continue
		}
		if len(raws) == 0 {
			continue
		}
		result.Scraped += len(raws)

		ingested, err := p.ingest.IngestBatch(ctx, raws, stop)
		if err != nil {
			p.logger.Error().Err(err).Str("task_id", taskID).Msg("Ingest failed")
			continue
		}
		result.Created += ingested.Created
		result.Updated += ingested.Updated
		result.Changed += ingested.Changed
	}
}

func (p *Pipeline) runMatching(ctx context.Context, result *CycleResult, stop *common.Stop) error {
	fingerprint, err := p.profiler.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("resume profiling failed: %w", err)
	}

	// A changed resume makes all prior matches stale history
	if p.lastResumeFingerprint != "" && p.lastResumeFingerprint != fingerprint &&
		p.config.Matching.InvalidateOnResumeChange {
		count, err := p.matchStore.InvalidateForResume(ctx, p.lastResumeFingerprint, "Resume updated")
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to invalidate matches for previous resume")
		} else if count > 0 {
			p.logger.Info().Int("invalidated", count).Msg("Invalidated matches for previous resume")
		}
	}
	p.lastResumeFingerprint = fingerprint

	candidates, err := p.matcher.FindCandidates(ctx, fingerprint, stop)
	if err != nil {
		return err
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		return nil
	}

	wants, err := scorer.LoadWants(p.config.Matching.UserWantsFile)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to load wants file, scoring fit only")
	}
	wantVectors, err := p.scorer.EmbedWants(ctx, wants)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to embed wants, scoring fit only")
		wantVectors = nil
	}

	scored := make([]*models.ScoredMatch, 0, len(candidates))
	for _, candidate := range candidates {
		if stop != nil && stop.Fired() {
			break
		}
		s, err := p.scorer.Score(ctx, candidate, wantVectors)
		if err != nil {
			p.logger.Error().Err(err).Str("job_id", candidate.Job.ID).Msg("Scoring failed")
			continue
		}
		scored = append(scored, s)
	}

	kept := scorer.ApplyPolicy(&p.config.Matching.ResultPolicy, scored)
	persisted, err := p.matches.PersistAll(ctx, kept, stop)
	if err != nil {
		return err
	}
	result.MatchesCreated = persisted.Created
	result.MatchesUpdated = persisted.Updated

	if p.notifier != nil {
		jobsByID := make(map[string]*models.Job, len(kept))
		for _, match := range kept {
			jobsByID[match.Preliminary.Job.ID] = match.Preliminary.Job
		}
		for _, event := range persisted.Events {
			job := jobsByID[event.Match.JobID]
			if job == nil {
				continue
			}
			if err := p.notifier.NotifyMatch(ctx, event.Event, event.Match, job); err != nil {
				p.logger.Warn().Err(err).Str("match_id", event.Match.ID).Msg("Match notification failed")
				continue
			}
			result.Notified++
		}
	}
	return nil
}
