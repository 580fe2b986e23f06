package interfaces

import (
	"context"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/models"
)

// ScraperClient is the boundary to the external task-based scraping service
type ScraperClient interface {
	// Submit posts a scraper config and returns the created task id.
	// 4xx responses are terminal; 5xx, timeouts and connection errors are
	// retried with fixed backoff.
	Submit(ctx context.Context, cfg common.ScraperConfig) (string, error)

	// WaitForResult polls the task until completion, failure, timeout or
	// stop. Failure and timeout return (nil, nil): the cycle continues.
	WaitForResult(ctx context.Context, taskID string, stop *common.Stop) ([]models.RawJob, error)
}
