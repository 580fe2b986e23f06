package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Database      DatabaseConfig      `toml:"database"`
	JobSpy        JobSpyConfig        `toml:"jobspy"`
	ETL           ETLConfig           `toml:"etl"`
	Matching      MatchingConfig      `toml:"matching"`
	Notifications NotificationsConfig `toml:"notifications"`
	Schedule      ScheduleConfig      `toml:"schedule"`
	Scrapers      []ScraperConfig     `toml:"scrapers"`
	Logging       LoggingConfig       `toml:"logging"`
}

// DatabaseConfig holds the persistence layer location.
// URL is a filesystem path to the Badger data directory.
type DatabaseConfig struct {
	URL            string `toml:"url" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// JobSpyConfig holds the external job-scraper service settings
type JobSpyConfig struct {
	URL                   string `toml:"url" validate:"required"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds" validate:"gt=0"`
	JobTimeoutSeconds     int    `toml:"job_timeout_seconds" validate:"gt=0"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" validate:"gt=0"`
}

// ETLConfig groups extraction, embedding and resume settings
type ETLConfig struct {
	LLM    LLMConfig    `toml:"llm"`
	Resume ResumeConfig `toml:"resume"`
	Facets FacetsConfig `toml:"facets"`
}

// LLMConfig holds OpenAI-compatible endpoint settings.
// EmbeddingBaseURL/EmbeddingAPIKey fall back to BaseURL/APIKey when empty.
type LLMConfig struct {
	BaseURL               string  `toml:"base_url" validate:"required"`
	APIKey                string  `toml:"api_key"`
	ExtractionModel       string  `toml:"extraction_model" validate:"required"`
	EmbeddingModel        string  `toml:"embedding_model" validate:"required"`
	EmbeddingDimensions   int     `toml:"embedding_dimensions" validate:"gt=0"`
	ExtractionTemperature float32 `toml:"extraction_temperature"`
	EmbeddingBaseURL      string  `toml:"embedding_base_url"`
	EmbeddingAPIKey       string  `toml:"embedding_api_key"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	RateLimit             string  `toml:"rate_limit"` // Minimum interval between calls, e.g. "500ms"
}

// ResumeConfig holds the candidate resume input
type ResumeConfig struct {
	ResumeFile string `toml:"resume_file"`
}

// FacetsConfig controls the claim-based facet extraction workers
type FacetsConfig struct {
	Workers             int `toml:"workers"`               // Concurrent facet workers (default: 2)
	ClaimBatchSize      int `toml:"claim_batch_size"`      // Jobs claimed per worker pass (default: 5)
	ClaimTimeoutSeconds int `toml:"claim_timeout_seconds"` // Stale claim reset threshold (default: 600)
	MaxRetries          int `toml:"max_retries"`           // Failures before quarantine (default: 3)
}

// MatchingConfig groups matcher, scorer and result policy settings
type MatchingConfig struct {
	Enabled                  bool         `toml:"enabled"`
	UserWantsFile            string       `toml:"user_wants_file"`
	Matcher                  Matcher      `toml:"matcher"`
	Scorer                   Scorer       `toml:"scorer"`
	ResultPolicy             ResultPolicy `toml:"result_policy"`
	InvalidateOnJobChange    bool         `toml:"invalidate_on_job_change"`
	InvalidateOnResumeChange bool         `toml:"invalidate_on_resume_change"`
	RecalculateExisting      bool         `toml:"recalculate_existing"`
}

// Matcher holds stage-1 retrieval settings
type Matcher struct {
	SimilarityThreshold float64 `toml:"similarity_threshold" validate:"gte=0,lte=1"`
	BatchSize           int     `toml:"batch_size"`
}

// Scorer holds stage-2 weights and penalty magnitudes
type Scorer struct {
	WeightRequired              float64            `toml:"weight_required"`
	WeightPreferred             float64            `toml:"weight_preferred"`
	WeightSimilarity            float64            `toml:"weight_similarity"`
	FitWeight                   float64            `toml:"fit_weight"`
	WantWeight                  float64            `toml:"want_weight"`
	FacetWeights                map[string]float64 `toml:"facet_weights"`
	PenaltyMissingRequired      float64            `toml:"penalty_missing_required"`
	PenaltySeniorityMismatch    float64            `toml:"penalty_seniority_mismatch"`
	PenaltyCompensationMismatch float64            `toml:"penalty_compensation_mismatch"`
	PenaltyExperienceShortfall  float64            `toml:"penalty_experience_shortfall"`
	WantsRemote                 bool               `toml:"wants_remote"`
	MinSalary                   float64            `toml:"min_salary"`
	TargetSeniority             string             `toml:"target_seniority"`
}

// ResultPolicy filters and truncates scored matches
type ResultPolicy struct {
	MinFit                float64  `toml:"min_fit"`
	TopK                  int      `toml:"top_k"`
	MinJDRequiredCoverage *float64 `toml:"min_jd_required_coverage"`
}

// NotificationsConfig holds dispatch settings
type NotificationsConfig struct {
	Enabled                 bool                     `toml:"enabled"`
	UserID                  string                   `toml:"user_id"`
	BaseURL                 string                   `toml:"base_url"`
	MinScoreThreshold       float64                  `toml:"min_score_threshold"`
	NotifyOnNewMatch        bool                     `toml:"notify_on_new_match"`
	NotifyOnBatchComplete   bool                     `toml:"notify_on_batch_complete"`
	Channels                map[string]ChannelConfig `toml:"channels"`
	DeduplicationEnabled    bool                     `toml:"deduplication_enabled"`
	ResendIntervalHours     int                      `toml:"resend_interval_hours"`
	UseAsyncQueue           bool                     `toml:"use_async_queue"`
	RedisURL                string                   `toml:"redis_url"`
	RateLimitMaxWaitSeconds int                      `toml:"rate_limit_max_wait_seconds"`
	MaxRateLimitRetries     int                      `toml:"max_rate_limit_retries"`
	QueueWorkers            int                      `toml:"queue_workers"`
	DeduplicationStrategy   string                   `toml:"deduplication_strategy"` // "default" or "aggressive"
}

// ChannelConfig holds per-channel settings. Options carries channel-specific
// keys (smtp_host, webhook_url, bot_token, ...).
type ChannelConfig struct {
	Enabled   bool              `toml:"enabled"`
	Recipient string            `toml:"recipient"`
	Options   map[string]string `toml:"options"`
}

// ScheduleConfig controls the periodic pipeline cycle
type ScheduleConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// ScraperConfig describes one scrape submission to the jobspy service.
// The struct is posted to the service as JSON, so it carries json tags too.
type ScraperConfig struct {
	SiteType      []string          `toml:"site_type" json:"site_type"`
	SearchTerm    string            `toml:"search_term" json:"search_term,omitempty"`
	Location      string            `toml:"location" json:"location,omitempty"`
	Country       string            `toml:"country" json:"country,omitempty"`
	ResultsWanted int               `toml:"results_wanted" json:"results_wanted"`
	HoursOld      int               `toml:"hours_old" json:"hours_old,omitempty"`
	Options       map[string]string `toml:"options" json:"options,omitempty"`
}

// LoggingConfig mirrors the arbor writer configuration
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in aptus.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			URL: "./data",
		},
		JobSpy: JobSpyConfig{
			URL:                   "http://localhost:8000",
			PollIntervalSeconds:   5,
			JobTimeoutSeconds:     600,
			RequestTimeoutSeconds: 30,
		},
		ETL: ETLConfig{
			LLM: LLMConfig{
				BaseURL:               "http://localhost:11434/v1",
				ExtractionModel:       "qwen2.5:14b",
				EmbeddingModel:        "bge-m3",
				EmbeddingDimensions:   1024,
				ExtractionTemperature: 0.1,
				RequestTimeoutSeconds: 120,
				RateLimit:             "200ms",
			},
			Resume: ResumeConfig{
				ResumeFile: "./resume.yaml",
			},
			Facets: FacetsConfig{
				Workers:             2,
				ClaimBatchSize:      5,
				ClaimTimeoutSeconds: 600,
				MaxRetries:          3,
			},
		},
		Matching: MatchingConfig{
			Enabled: true,
			Matcher: Matcher{
				SimilarityThreshold: 0.5,
				BatchSize:           50,
			},
			Scorer: Scorer{
				WeightRequired:   0.7,
				WeightPreferred:  0.3,
				WeightSimilarity: 0.3,
				FitWeight:        0.8,
				WantWeight:       0.2,
				FacetWeights: map[string]float64{
					"remote_flexibility": 0.15,
					"compensation":       0.20,
					"learning_growth":    0.15,
					"company_culture":    0.15,
					"work_life_balance":  0.15,
					"tech_stack":         0.10,
					"visa_sponsorship":   0.10,
				},
				PenaltyMissingRequired:      15,
				PenaltySeniorityMismatch:    10,
				PenaltyCompensationMismatch: 10,
				PenaltyExperienceShortfall:  15,
			},
			ResultPolicy: ResultPolicy{
				MinFit: 40,
				TopK:   25,
			},
			InvalidateOnJobChange:    true,
			InvalidateOnResumeChange: true,
			RecalculateExisting:      true,
		},
		Notifications: NotificationsConfig{
			Enabled:                 false,
			MinScoreThreshold:       60,
			NotifyOnNewMatch:        true,
			NotifyOnBatchComplete:   false,
			Channels:                map[string]ChannelConfig{},
			DeduplicationEnabled:    true,
			ResendIntervalHours:     24,
			UseAsyncQueue:           false,
			RateLimitMaxWaitSeconds: 60,
			MaxRateLimitRetries:     3,
			QueueWorkers:            2,
			DeduplicationStrategy:   "default",
		},
		Schedule: ScheduleConfig{
			IntervalSeconds: 3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded configuration against its validation tags
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Matching.Scorer.FitWeight+c.Matching.Scorer.WantWeight <= 0 {
		return fmt.Errorf("invalid configuration: fit_weight + want_weight must be positive")
	}
	for _, sc := range c.Scrapers {
		if len(sc.SiteType) == 0 {
			return fmt.Errorf("invalid configuration: scraper entry missing site_type")
		}
		if sc.ResultsWanted <= 0 {
			return fmt.Errorf("invalid configuration: scraper entry results_wanted must be positive")
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Documented aliases (DATABASE_URL, JOBSPY_URL, ETL_LLM_*, ETL_EMBEDDING_*,
// REDIS_URL) take precedence over APTUS_-prefixed names.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("APTUS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Database
	setString(&config.Database.URL, "APTUS_DATABASE_URL", "DATABASE_URL")

	// JobSpy scraper service
	setString(&config.JobSpy.URL, "APTUS_JOBSPY_URL", "JOBSPY_URL")
	setInt(&config.JobSpy.PollIntervalSeconds, "JOBSPY_POLL_INTERVAL_SECONDS")
	setInt(&config.JobSpy.JobTimeoutSeconds, "JOBSPY_JOB_TIMEOUT_SECONDS")
	setInt(&config.JobSpy.RequestTimeoutSeconds, "JOBSPY_REQUEST_TIMEOUT_SECONDS")

	// LLM extraction endpoint
	setString(&config.ETL.LLM.BaseURL, "ETL_LLM_BASE_URL")
	setString(&config.ETL.LLM.APIKey, "ETL_LLM_API_KEY")
	setString(&config.ETL.LLM.ExtractionModel, "ETL_LLM_EXTRACTION_MODEL")
	if temp := os.Getenv("ETL_LLM_EXTRACTION_TEMPERATURE"); temp != "" {
		if t, err := strconv.ParseFloat(temp, 32); err == nil {
			config.ETL.LLM.ExtractionTemperature = float32(t)
		}
	}

	// Embedding endpoint (falls back to the extraction endpoint when unset)
	setString(&config.ETL.LLM.EmbeddingModel, "ETL_EMBEDDING_MODEL")
	setString(&config.ETL.LLM.EmbeddingBaseURL, "ETL_EMBEDDING_BASE_URL")
	setString(&config.ETL.LLM.EmbeddingAPIKey, "ETL_EMBEDDING_API_KEY")
	setInt(&config.ETL.LLM.EmbeddingDimensions, "ETL_EMBEDDING_DIMENSIONS")

	// Resume
	setString(&config.ETL.Resume.ResumeFile, "ETL_RESUME_FILE")

	// Notifications
	setString(&config.Notifications.RedisURL, "APTUS_REDIS_URL", "REDIS_URL")
	setString(&config.Notifications.UserID, "APTUS_NOTIFICATIONS_USER_ID")

	// Schedule
	setInt(&config.Schedule.IntervalSeconds, "APTUS_SCHEDULE_INTERVAL_SECONDS")

	// Logging
	setString(&config.Logging.Level, "APTUS_LOG_LEVEL")
	setString(&config.Logging.Format, "APTUS_LOG_FORMAT")
	if output := os.Getenv("APTUS_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// setString assigns the last non-empty environment variable in names to dst,
// so aliases listed later win over earlier prefixed names.
func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}
