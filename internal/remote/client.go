package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
)

// APIError carries the record service's rejection of a request.
// Transport-level failures are returned as-is, not wrapped in APIError.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record service: status %d: %s", e.StatusCode, e.Message)
}

// SubmissionRequest is the wire shape accepted by the record service.
type SubmissionRequest struct {
	OwnerID         string `json:"owner_id"`
	Credential      string `json:"credential"`
	Type            string `json:"type"`
	Payload         string `json:"payload"`
	TimestampClient string `json:"timestamp_client"`
	TimezoneLabel   string `json:"timezone_label"`
}

// SubmissionResponse is the service acknowledgement.
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client calls the central record service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client with baseURL, API key and a per-call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = models.DefaultRemoteTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit posts one submission. 2xx with success=true is the only
// accepted outcome; everything else becomes an APIError or the
// underlying transport error.
func (c *Client) Submit(ctx context.Context, sub models.Submission) error {
	req := SubmissionRequest{
		OwnerID:         sub.OwnerID,
		Credential:      sub.Credential,
		Type:            sub.Type,
		Payload:         sub.Payload,
		TimestampClient: sub.ClientTime.Format(time.RFC3339),
		TimezoneLabel:   sub.TimezoneLabel,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/submissions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var ack SubmissionResponse
	_ = json.Unmarshal(raw, &ack)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: ack.Message}
	}
	if !ack.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: ack.Message}
	}
	return nil
}

// Ping performs a cheap reachability check against the service.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/v1/ping", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode >= 500 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}
