// Package remote mirrors ended sessions to another tracking backend over REST.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// StatusError is returned when the backend answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the /sessions resource of a tracking backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, e.g. http://host:5000/api.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Save posts the document. The backend upserts by sessionId.
func (c *Client) Save(ctx context.Context, doc tracking.Document) (tracking.Document, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return tracking.Document{}, fmt.Errorf("failed to marshal session: %w", err)
	}

	var saved tracking.Document
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &saved); err != nil {
		return tracking.Document{}, err
	}
	return saved, nil
}

// Delete removes a document. A missing document reports false without error.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List fetches every document, newest first. Events are returned raw.
func (c *Client) List(ctx context.Context) ([]tracking.Submission, error) {
	var docs []tracking.Submission
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call remote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
