package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// Service ingests raw scraped jobs: fingerprint, deduplicate, upsert.
// A content-hash change is the authoritative trigger for downstream
// re-extraction and match invalidation.
type Service struct {
	jobStore              interfaces.JobStore
	matchStore            interfaces.MatchStore
	invalidateOnJobChange bool
	logger                arbor.ILogger
}

// NewService creates a new ingest service
func NewService(jobStore interfaces.JobStore, matchStore interfaces.MatchStore, invalidateOnJobChange bool, logger arbor.ILogger) *Service {
	return &Service{
		jobStore:              jobStore,
		matchStore:            matchStore,
		invalidateOnJobChange: invalidateOnJobChange,
		logger:                logger,
	}
}

// Result aggregates one ingest batch
type Result struct {
	Created int
	Updated int
	Changed int
	Failed  int
}

// IngestBatch processes a slice of raw jobs, one unit of work per item.
// A malformed item is logged and skipped; the batch continues.
func (s *Service) IngestBatch(ctx context.Context, raws []models.RawJob, stop *common.Stop) (*Result, error) {
	result := &Result{}
	for i := range raws {
		if stop != nil && stop.Fired() {
			s.logger.Info().Int("processed", i).Msg("Stop fired during ingest")
			break
		}
		created, changed, err := s.IngestOne(ctx, &raws[i])
		if err != nil {
			result.Failed++
			s.logger.Error().
				Err(err).
				Str("title", raws[i].Title).
				Str("company", raws[i].Company).
				Msg("Failed to ingest job")
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		if changed {
			result.Changed++
		}
	}
	return result, nil
}

// IngestOne upserts a single raw job. Returns (created, contentChanged).
func (s *Service) IngestOne(ctx context.Context, raw *models.RawJob) (bool, bool, error) {
	if raw.Title == "" || raw.Company == "" {
		return false, false, fmt.Errorf("raw job missing title or company")
	}

	location := NormalizeLocation(raw.Location)
	fingerprint := common.Fingerprint(raw.Company, raw.Title, location)
	now := time.Now()

	job, err := s.jobStore.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return false, false, err
	}

	created := false
	if job == nil {
		job = &models.Job{
			ID:                   uuid.New().String(),
			CanonicalFingerprint: fingerprint,
			Title:                raw.Title,
			Company:              raw.Company,
			LocationText:         location,
			IsRemote:             raw.IsRemote,
			FirstSeenAt:          now,
			FacetStatus:          models.FacetStatusPending,
		}
		created = true
	}
	job.LastSeenAt = now

	newHash := common.ContentHash(raw.Description, raw.Skills, raw.Title, raw.Company)
	changed := job.ContentHash != "" && job.ContentHash != newHash

	if job.ContentHash != newHash {
		job.Description = raw.Description
		job.Skills = raw.Skills
		job.ContentHash = newHash
		if payload, err := json.Marshal(raw); err == nil {
			job.RawPayload = payload
		}
		if !created {
			// Changed content must flow through extraction and embedding again
			job.IsExtracted = false
			job.IsEmbedded = false
			if job.FacetStatus == models.FacetStatusDone || job.FacetStatus == models.FacetStatusQuarantined {
				job.FacetStatus = models.FacetStatusPending
				job.FacetRetryCount = 0
			}
		}
	}
	if raw.SalaryMin != nil {
		job.SalaryMin = raw.SalaryMin
	}
	if raw.SalaryMax != nil {
		job.SalaryMax = raw.SalaryMax
	}
	if raw.Currency != "" {
		job.Currency = raw.Currency
	}

	if err := s.jobStore.Save(ctx, job); err != nil {
		return false, false, err
	}

	if raw.URL != "" {
		source := &models.JobPostSource{
			ID:        common.HashKey(raw.Site, raw.URL),
			JobID:     job.ID,
			Site:      raw.Site,
			URL:       raw.URL,
			FirstSeen: now,
			LastSeen:  now,
		}
		if err := s.jobStore.UpsertSource(ctx, source); err != nil {
			return false, false, err
		}
	}

	if changed && s.invalidateOnJobChange {
		count, err := s.matchStore.InvalidateForJob(ctx, job.ID, "Job content updated")
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to invalidate matches for changed job")
		} else if count > 0 {
			s.logger.Info().
				Str("job_id", job.ID).
				Int("invalidated", count).
				Msg("Invalidated matches for changed job content")
		}
	}

	return created, changed, nil
}

// NormalizeLocation flattens the scraper's polymorphic location field to a
// single string: objects become "city|country" parts, lists take the first
// element, strings pass through.
func NormalizeLocation(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var dict map[string]string
	if err := json.Unmarshal(raw, &dict); err == nil {
		if city := dict["city"]; city != "" {
			if country := dict["country"]; country != "" {
				return city + ", " + country
			}
			return city
		}
		return dict["country"]
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}

	return ""
}
