package dexter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultPollInterval is used by WaitJob when no interval is given.
const DefaultPollInterval = 500 * time.Millisecond

// Client wraps the HTTP interactions with the Dexter REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("dexter api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("dexter api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Dexter API. When httpClient is nil,
// a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Evaluate runs a single evaluation round without optimization.
func (c *Client) Evaluate(ctx context.Context, req Request) (BatchResult, error) {
	var out BatchResult
	if err := c.post(ctx, "/api/v1/evaluate", req, &out); err != nil {
		return BatchResult{}, err
	}
	return out, nil
}

// Optimize runs the evaluate-optimize loop synchronously.
func (c *Client) Optimize(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	if err := c.post(ctx, "/api/v1/optimize", req, &out); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Suggestions asks for alternative approaches to the given failed findings.
func (c *Client) Suggestions(ctx context.Context, objective Objective, issues []Result) ([]Suggestion, error) {
	payload := struct {
		Objective Objective `json:"objective"`
		Issues    []Result  `json:"issues"`
	}{objective, issues}
	var out struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	if err := c.post(ctx, "/api/v1/suggestions", payload, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SubmitJob queues an asynchronous optimization. An empty id lets the server
// generate one; resubmitting a known id returns the existing job.
func (c *Client) SubmitJob(ctx context.Context, id string, req Request) (Job, error) {
	payload := struct {
		ID string `json:"id,omitempty"`
		Request
	}{id, req}
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", payload, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	if id == "" {
		return Job{}, errors.New("dexter: job id is required")
	}
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// WaitJob polls until the job is done or ctx expires.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
