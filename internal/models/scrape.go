package models

import "encoding/json"

// RawJob is one job posting as returned by the scraper service. Location may
// arrive as a string, an object or a list, so it is decoded lazily.
type RawJob struct {
	Title       string          `json:"title"`
	Company     string          `json:"company"`
	Location    json.RawMessage `json:"location"`
	URL         string          `json:"job_url"`
	Site        string          `json:"site"`
	Description string          `json:"description"`
	Skills      string          `json:"skills"`
	IsRemote    bool            `json:"is_remote"`
	SalaryMin   *float64        `json:"min_amount"`
	SalaryMax   *float64        `json:"max_amount"`
	Currency    string          `json:"currency"`
	Raw         json.RawMessage `json:"-"`
}

// ScrapeTaskStatus is the polled state of a submitted scrape task
type ScrapeTaskStatus struct {
	Status string          `json:"status"` // pending | completed | failed
	Count  int             `json:"count,omitempty"`
	Data   []RawJob        `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Raw    json.RawMessage `json:"-"`
}
