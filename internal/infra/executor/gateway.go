// Package executor delivers dispatched scan work to the external
// executor over HTTP. Requests carry a short-lived signed token so the
// executor can verify who is calling; the executor reports back through
// the callback endpoints using the same shared secret.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seiforesti/data-wave-sub013/internal/infra/jobs"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// tokenTTL bounds how long a dispatch token stays valid.
const tokenTTL = 2 * time.Minute

// HTTPGateway implements jobs.ExecutorGateway against an HTTP executor.
type HTTPGateway struct {
	baseURL string
	secret  []byte
	client  *http.Client
	logger  *logger.Logger
}

// NewHTTPGateway creates a new HTTPGateway.
func NewHTTPGateway(baseURL, secret string, timeout time.Duration, log *logger.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		secret:  []byte(secret),
		client:  &http.Client{Timeout: timeout},
		logger:  log.With("component", "executor_gateway"),
	}
}

// Ensure HTTPGateway implements jobs.ExecutorGateway
var _ jobs.ExecutorGateway = (*HTTPGateway)(nil)

// StartScan posts a scan request to the executor.
func (g *HTTPGateway) StartScan(ctx context.Context, payload jobs.ScanExecutePayload) error {
	return g.post(ctx, "/v1/scans", payload)
}

// CancelScan asks the executor to stop work on a run.
func (g *HTTPGateway) CancelScan(ctx context.Context, runID string) error {
	return g.post(ctx, "/v1/scans/"+runID+"/cancel", nil)
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := g.signToken()
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("executor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func (g *HTTPGateway) signToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "scan-orchestrator",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	return token.SignedString(g.secret)
}
