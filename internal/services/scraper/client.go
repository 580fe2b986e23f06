package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

const (
	submitAttempts = 3
	pollAttempts   = 3
)

var (
	submitDelay = 2 * time.Second
	pollDelay   = 1 * time.Second
)

// Client is the long-lived HTTP client for the jobspy scraping service.
// One http.Client is shared across submissions for connection reuse.
type Client struct {
	config *common.JobSpyConfig
	http   *http.Client
	logger arbor.ILogger
}

// NewClient creates a new scraper client
func NewClient(config *common.JobSpyConfig, logger arbor.ILogger) interfaces.ScraperClient {
	timeout := time.Duration(config.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit posts the scraper config and returns the created task id.
// 5xx, timeouts and connection errors are retried with fixed delay;
// 4xx responses are terminal.
func (c *Client) Submit(ctx context.Context, cfg common.ScraperConfig) (string, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scraper config: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		taskID, retryable, err := c.trySubmit(ctx, payload)
		if err == nil {
			c.logger.Info().
				Str("task_id", taskID).
				Str("search_term", cfg.SearchTerm).
				Msg("Scrape task submitted")
			return taskID, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("Scrape submission failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(submitDelay):
		}
	}
	return "", fmt.Errorf("scrape submission failed after %d attempts: %w", submitAttempts, lastErr)
}

func (c *Client) trySubmit(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read scrape response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("scraper service error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("scrape request rejected with %d: %s", resp.StatusCode, string(data))
	}

	var result submitResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", false, fmt.Errorf("failed to decode scrape response: %w", err)
	}
	if result.TaskID == "" {
		return "", false, fmt.Errorf("scraper service returned empty task id")
	}
	return result.TaskID, false, nil
}

// WaitForResult polls the task status until completed, failed, wall-clock
// timeout or stop. Failed and timed-out tasks return (nil, nil) so the
// cycle continues with the remaining scrapers.
func (c *Client) WaitForResult(ctx context.Context, taskID string, stop *common.Stop) ([]models.RawJob, error) {
	pollInterval := time.Duration(c.config.PollIntervalSeconds) * time.Second
	deadline := time.Now().Add(time.Duration(c.config.JobTimeoutSeconds) * time.Second)

	for {
		if stop != nil && stop.Fired() {
			c.logger.Info().Str("task_id", taskID).Msg("Stop fired while waiting for scrape result")
			return nil, nil
		}
		if time.Now().After(deadline) {
			c.logger.Warn().Str("task_id", taskID).Msg("Scrape task timed out")
			return nil, nil
		}

		status, err := c.pollStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			c.logger.Info().
				Str("task_id", taskID).
				Int("count", len(status.Data)).
				Msg("Scrape task completed")
			return status.Data, nil
		case "failed":
			c.logger.Warn().
				Str("task_id", taskID).
				Str("error", status.Error).
				Msg("Scrape task failed")
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// pollStatus fetches the task status once, retrying transient failures
func (c *Client) pollStatus(ctx context.Context, taskID string) (*models.ScrapeTaskStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= pollAttempts; attempt++ {
		status, retryable, err := c.tryPoll(ctx, taskID)
		if err == nil {
			return status, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollDelay):
		}
	}
	return nil, fmt.Errorf("status poll failed after %d attempts: %w", pollAttempts, lastErr)
}

func (c *Client) tryPoll(ctx context.Context, taskID string) (*models.ScrapeTaskStatus, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"/status/"+taskID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("scraper service error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("status request rejected with %d", resp.StatusCode)
	}

	var status models.ScrapeTaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, false, fmt.Errorf("failed to decode status response: %w", err)
	}
	status.Raw = data
	return &status, false, nil
}
