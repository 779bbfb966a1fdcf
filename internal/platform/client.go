package platform

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

	"github.com/rs/zerolog"
)

// DefaultEndpoint is the BioData Catalyst (Seven Bridges) public API.
const DefaultEndpoint = "https://api.sb.biodatacatalyst.nhlbi.nih.gov/v2"

const authHeader = "X-SBG-Auth-Token"

type Options struct {
	Endpoint          string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryConfig
	Logger            zerolog.Logger
}

// Client talks to the platform REST API.
type Client struct {
	endpoint string
	token    string
	http     *RetryableHTTPClient
	pages    *Paginator
	metrics  *Metrics
	log      zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("platform auth token missing; set auth_token for the profile or SB_AUTH_TOKEN")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := opts.Retry
	if retry.InitialDelay == 0 && retry.MaxRetries == 0 && len(retry.RetryableErrors) == 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    opts.Token,
		http:     NewRetryableHTTPClient(timeout, opts.RequestsPerSecond, retry, opts.Logger),
		pages:    NewPaginator(),
		metrics:  NewMetrics(),
		log:      opts.Logger,
	}, nil
}

func (c *Client) Metrics() *Metrics { return c.metrics }

// doJSON sends body (if any) as JSON and decodes a 2xx response into out.
// path may be absolute (pagination links) or relative to the endpoint.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	err := c.do(ctx, method, path, query, body, out)
	c.metrics.Record(time.Since(start), err)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.endpoint + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(authHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("url", target).Msg("platform request")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// notFound converts a 404 response into a NotFoundError for kind/query.
func notFound(err error, kind, query string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Kind: kind, Query: query}
	}
	return err
}
