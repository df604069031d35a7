package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the orchestration API HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new API client.
func NewClient(baseURL string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// apiErrorBody matches the service's error response shape.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("%s (%d %s)", apiErr.Message, status, http.StatusText(status))
	}
	return fmt.Errorf("request failed: %d %s", status, http.StatusText(status))
}

// Response types mirroring the API's JSON shapes.

type ScanConfigResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	DataSourceID      int64             `json:"data_source_id"`
	ScanType          string            `json:"scan_type"`
	Schedule          *ScheduleResponse `json:"schedule,omitempty"`
	ConcurrencyPolicy string            `json:"concurrency_policy"`
	Status            string            `json:"status"`
	Revision          int64             `json:"revision"`
	LastRunID         *string           `json:"last_run_id,omitempty"`
	LastRunAt         *string           `json:"last_run_at,omitempty"`
	LastRunStatus     string            `json:"last_run_status,omitempty"`
	TotalRuns         int               `json:"total_runs"`
	SuccessfulRuns    int               `json:"successful_runs"`
	FailedRuns        int               `json:"failed_runs"`
	CreatedBy         string            `json:"created_by,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

type ScheduleResponse struct {
	Enabled   bool    `json:"enabled"`
	Cron      string  `json:"cron,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	NextRunAt *string `json:"next_run_at,omitempty"`
}

type ScanConfigListResponse struct {
	Data       []ScanConfigResponse `json:"data"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PerPage    int                  `json:"per_page"`
	TotalPages int                  `json:"total_pages"`
}

type ScanRunResponse struct {
	ID              string  `json:"id"`
	ConfigurationID string  `json:"configuration_id"`
	Name            string  `json:"name,omitempty"`
	TriggerType     string  `json:"trigger_type"`
	TriggeredBy     string  `json:"triggered_by,omitempty"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	ErrorSummary    string  `json:"error_summary,omitempty"`
	EntitiesScanned int     `json:"entities_scanned"`
	IssuesFound     int     `json:"issues_found"`
	StartedAt       *string `json:"started_at,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	CreatedAt       string  `json:"created_at"`
}

type ScanRunListResponse struct {
	Data       []ScanRunResponse `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	TotalPages int               `json:"total_pages"`
}

type ScanIssueResponse struct {
	ID              string  `json:"id"`
	RunID           string  `json:"run_id"`
	ConfigurationID string  `json:"configuration_id"`
	Severity        string  `json:"severity"`
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	Assignee        string  `json:"assignee,omitempty"`
	DetectedAt      string  `json:"detected_at"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
}

type ScanIssueListResponse struct {
	Data       []ScanIssueResponse `json:"data"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

type MetricsSummaryResponse struct {
	WindowFrom           string           `json:"window_from"`
	WindowTo             string           `json:"window_to"`
	DataSourceID         *int64           `json:"data_source_id,omitempty"`
	TotalRuns            int64            `json:"total_runs"`
	CompletedRuns        int64            `json:"completed_runs"`
	FailedRuns           int64            `json:"failed_runs"`
	CancelledRuns        int64            `json:"cancelled_runs"`
	ActiveRuns           int64            `json:"active_runs"`
	SuccessRate          float64          `json:"success_rate"`
	AvgDurationMS        int64            `json:"avg_duration_ms"`
	TotalEntitiesScanned int64            `json:"total_entities_scanned"`
	TotalIssuesFound     int64            `json:"total_issues_found"`
	DistinctDataSources  int64            `json:"distinct_data_sources"`
	IssuesBySeverity     map[string]int64 `json:"issues_by_severity"`
}
