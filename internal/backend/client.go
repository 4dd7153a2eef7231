// Package backend is the REST client for the maze status service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/summary"
)

const statusPath = "/device/status"

// DefaultTimeout bounds a single request when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Config locates and authenticates against the backend.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// Permanent reports whether resending the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client for cfg. A nil logger uses logrus.New().
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:  u,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// PostStatus stores rec as a new status record.
func (c *Client) PostStatus(ctx context.Context, rec summary.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	var created summary.Record
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil), body, &created); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"id":             created.ID,
		"device_id":      rec.DeviceID,
		"maze_completed": rec.MazeCompleted,
	}).Debug("Status record stored")
	return nil
}

// History returns the records stored for deviceID.
func (c *Client) History(ctx context.Context, deviceID string) ([]summary.Record, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is empty")
	}
	var records []summary.Record
	if err := c.do(ctx, http.MethodGet, c.endpoint(url.Values{"device_id": {deviceID}}), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) endpoint(query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + statusPath
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, statusPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, statusPath, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, statusPath, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return strings.TrimSpace(body.Error)
	}
	return strings.TrimSpace(string(data))
}
