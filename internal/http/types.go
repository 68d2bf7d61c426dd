package http

import "time"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	StateLoaded bool   `json:"state_loaded"`
}

// ReportSummary describes one report file.
type ReportSummary struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ReportsResponse is the response body for GET /api/v1/reports.
type ReportsResponse struct {
	Reports []ReportSummary `json:"reports"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string         `json:"content"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}
