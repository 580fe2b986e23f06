package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// FacetWorker runs the claim-based facet extraction pool. Workers claim
// disjoint batches through the store, so several processes can run the pool
// against the same database without double work.
type FacetWorker struct {
	jobStore   interfaces.JobStore
	facetStore interfaces.FacetStore
	llm        interfaces.LLMService
	config     *common.FacetsConfig
	llmConfig  *common.LLMConfig
	logger     arbor.ILogger
}

// NewFacetWorker creates a new facet extraction pool
func NewFacetWorker(jobStore interfaces.JobStore, facetStore interfaces.FacetStore, llm interfaces.LLMService, config *common.FacetsConfig, llmConfig *common.LLMConfig, logger arbor.ILogger) *FacetWorker {
	return &FacetWorker{
		jobStore:   jobStore,
		facetStore: facetStore,
		llm:        llm,
		config:     config,
		llmConfig:  llmConfig,
		logger:     logger,
	}
}

// FacetResult aggregates one facet extraction pass
type FacetResult struct {
	Processed int
	Released  int
}

// Run drains the pending facet backlog with config.Workers concurrent
// workers. Each worker claims, processes and completes batches until its
// claim comes back empty or the stop fires.
func (w *FacetWorker) Run(ctx context.Context, stop *common.Stop) (*FacetResult, error) {
	workers := w.config.Workers
	if workers <= 0 {
		workers = 1
	}
	claimTimeout := time.Duration(w.config.ClaimTimeoutSeconds) * time.Second

	results := make([]FacetResult, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("facet-worker-%d", i)
		result := &results[i]
		g.Go(func() error {
			return w.runWorker(gctx, workerID, claimTimeout, stop, result)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &FacetResult{}
	for _, r := range results {
		total.Processed += r.Processed
		total.Released += r.Released
	}
	if total.Processed > 0 || total.Released > 0 {
		w.logger.Info().
			Int("processed", total.Processed).
			Int("released", total.Released).
			Msg("Facet extraction pass complete")
	}
	return total, nil
}

func (w *FacetWorker) runWorker(ctx context.Context, workerID string, claimTimeout time.Duration, stop *common.Stop, result *FacetResult) error {
	for {
		if stop != nil && stop.Fired() {
			return nil
		}

		jobs, err := w.jobStore.ClaimFacetPending(ctx, workerID, w.config.ClaimBatchSize, claimTimeout, w.config.MaxRetries)
		if err != nil {
			return fmt.Errorf("facet claim failed: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		for _, job := range jobs {
			if stop != nil && stop.Fired() {
				// Release unprocessed claims so the next run picks them up
				if err := w.jobStore.ReleaseFacetClaim(ctx, job.ID, "stopped"); err != nil {
					w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to release facet claim on stop")
				}
				continue
			}
			if err := w.processJob(ctx, job); err != nil {
				result.Released++
				w.logger.Error().
					Err(err).
					Str("job_id", job.ID).
					Str("worker", workerID).
					Msg("Facet extraction failed, releasing claim")
				if relErr := w.jobStore.ReleaseFacetClaim(ctx, job.ID, err.Error()); relErr != nil {
					w.logger.Warn().Err(relErr).Str("job_id", job.ID).Msg("Failed to release facet claim")
				}
				continue
			}
			result.Processed++
		}
	}
}

// processJob extracts the seven facet texts, embeds the non-empty ones and
// replaces the job's facet rows wholesale before completing the claim.
func (w *FacetWorker) processJob(ctx context.Context, job *models.Job) error {
	var extraction FacetExtraction
	outcome, err := w.llm.ExtractStructured(ctx, interfaces.StructuredRequest{
		SystemPrompt: facetSystemPrompt,
		UserContent:  buildUserContent(job),
		SchemaName:   "job_facets",
		Schema:       FacetSchema(),
		Temperature:  w.llmConfig.ExtractionTemperature,
	}, &extraction)
	if err != nil {
		return err
	}
	if !outcome.Valid() {
		return fmt.Errorf("facet payload did not fit schema")
	}

	texts := extraction.ByKey()
	keys := make([]models.FacetKey, 0, len(models.AllFacetKeys))
	inputs := make([]string, 0, len(models.AllFacetKeys))
	for _, key := range models.AllFacetKeys {
		if text := texts[string(key)]; text != "" {
			keys = append(keys, key)
			inputs = append(inputs, text)
		}
	}

	var vectors [][]float32
	if len(inputs) > 0 {
		vectors, err = w.llm.EmbedBatch(ctx, inputs)
		if err != nil {
			return fmt.Errorf("facet embedding failed: %w", err)
		}
	}

	facets := make([]*models.JobFacetEmbedding, len(keys))
	for i, key := range keys {
		facets[i] = &models.JobFacetEmbedding{
			ID:          models.FacetRowKey(job.ID, key),
			JobID:       job.ID,
			FacetKey:    key,
			FacetText:   inputs[i],
			Embedding:   vectors[i],
			ContentHash: job.ContentHash,
		}
	}
	if err := w.facetStore.ReplaceForJob(ctx, job.ID, facets); err != nil {
		return fmt.Errorf("failed to replace facets: %w", err)
	}

	if err := w.jobStore.CompleteFacetClaim(ctx, job.ID, job.ContentHash); err != nil {
		return fmt.Errorf("failed to complete facet claim: %w", err)
	}

	w.logger.Debug().
		Str("job_id", job.ID).
		Int("facets", len(facets)).
		Msg("Extracted job facets")
	return nil
}
