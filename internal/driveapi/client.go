package driveapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ligustah/drivesync/pkg/drive"
)

// DefaultEndpoint is the Drive v3 API root.
const DefaultEndpoint = "https://www.googleapis.com/drive/v3"

// Common errors.
var (
	ErrNotFound     = errors.New("driveapi: resource not found")
	ErrForbidden    = errors.New("driveapi: access forbidden")
	ErrUnauthorized = errors.New("driveapi: unauthorized")
	ErrRateLimited  = errors.New("driveapi: rate limited")
	ErrServerError  = errors.New("driveapi: server error")
)

// Error reasons reported by the API.
const (
	reasonExportSizeLimit = "exportSizeLimitExceeded"
	reasonRateLimit       = "rateLimitExceeded"
	reasonUserRateLimit   = "userRateLimitExceeded"
)

// Options configures the Drive client.
type Options struct {
	// Endpoint is the API root.
	// Default: https://www.googleapis.com/drive/v3
	Endpoint string

	// PageSize is the number of entries requested per listing page.
	// Default: 1000
	PageSize int

	// Timeout bounds a single listing request. Content streams are bounded
	// by the caller's context only.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of listing retries. Zero disables
	// retries; DefaultOptions uses 5.
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Endpoint:        DefaultEndpoint,
		PageSize:        1000,
		Timeout:         30 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Endpoint == "" {
		o.Endpoint = d.Endpoint
	}
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = d.RetryMaxBackoff
	}
	return o
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Reasons    []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("driveapi: %d %s (%s)", e.StatusCode, msg, strings.Join(e.Reasons, ", "))
	}
	return fmt.Sprintf("driveapi: %d %s", e.StatusCode, msg)
}

// Is maps the response onto the package sentinels and drive.ErrExportTooLarge.
func (e *APIError) Is(target error) bool {
	switch target {
	case drive.ErrExportTooLarge:
		return e.hasReason(reasonExportSizeLimit)
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimited:
		return e.rateLimited()
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden && !e.rateLimited()
	case ErrServerError:
		return e.StatusCode >= 500
	}
	return false
}

func (e *APIError) hasReason(reason string) bool {
	for _, r := range e.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func (e *APIError) rateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode == http.StatusForbidden &&
		(e.hasReason(reasonRateLimit) || e.hasReason(reasonUserRateLimit))
}

// retryable reports whether a listing request may be repeated.
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.rateLimited()
}

// Client is a drive.Client speaking the Drive v3 REST API.
type Client struct {
	hc   *http.Client
	opts Options
	base string
}

var _ drive.Client = (*Client)(nil)

// NewClient creates a client sending requests through hc, which is expected
// to attach credentials. A nil hc uses http.DefaultClient.
func NewClient(opts Options, hc *http.Client) (*Client, error) {
	opts = opts.withDefaults()
	base := strings.TrimRight(opts.Endpoint, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("driveapi: parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("driveapi: endpoint %q is not an absolute URL", opts.Endpoint)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, opts: opts, base: base}, nil
}

type fileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
	} `json:"files"`
}

// ListChildren returns one page of children of parentID matching q.
// Transport failures, rate limiting and server errors are retried with
// exponential backoff.
func (c *Client) ListChildren(ctx context.Context, parentID string, q drive.Query, pageToken string) (drive.Page, error) {
	fields := "nextPageToken, files(id, name, mimeType)"
	if q.FoldersOnly {
		fields = "nextPageToken, files(id, name)"
	}

	params := url.Values{}
	params.Set("q", q.Expression(parentID))
	params.Set("pageSize", strconv.Itoa(c.opts.PageSize))
	params.Set("fields", fields)
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	u := c.endpoint("files", params)

	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return drive.Page{}, err
			}
		}

		page, err := c.listOnce(ctx, u)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return drive.Page{}, ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return drive.Page{}, err
		}
		lastErr = err
	}

	return drive.Page{}, fmt.Errorf("list request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

func (c *Client) listOnce(ctx context.Context, u string) (drive.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.get(ctx, u)
	if err != nil {
		return drive.Page{}, err
	}
	defer resp.Body.Close()

	var list fileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return drive.Page{}, fmt.Errorf("decode file list: %w", err)
	}

	page := drive.Page{
		Entries:       make([]drive.Entry, 0, len(list.Files)),
		NextPageToken: list.NextPageToken,
	}
	for _, f := range list.Files {
		page.Entries = append(page.Entries, drive.Entry{ID: f.ID, Name: f.Name, MimeType: f.MimeType})
	}
	return page, nil
}

// ExportContent streams fileID converted to targetMimeType. A refusal because
// the document is too large matches drive.ErrExportTooLarge.
func (c *Client) ExportContent(ctx context.Context, fileID, targetMimeType string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("mimeType", targetMimeType)

	resp, err := c.get(ctx, c.endpoint("files/"+url.PathEscape(fileID)+"/export", params))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetContent streams the raw bytes of fileID.
func (c *Client) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("alt", "media")
	params.Set("supportsAllDrives", "true")

	resp, err := c.get(ctx, c.endpoint("files/"+url.PathEscape(fileID), params))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// endpoint joins an escaped path and query onto the API root.
func (c *Client) endpoint(path string, params url.Values) string {
	return c.base + "/" + path + "?" + params.Encode()
}

// get performs a GET and returns the response for 2xx statuses. Any other
// status is returned as an *APIError with the body consumed.
func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	return nil, parseError(resp)
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// parseError builds an *APIError from a non-success response.
func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Message = body.Error.Message
		for _, e := range body.Error.Errors {
			if e.Reason != "" {
				apiErr.Reasons = append(apiErr.Reasons, e.Reason)
			}
		}
	} else if len(data) > 0 {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	return apiErr
}

// backoffDelay returns the un-jittered delay before retry attempt, doubling
// from RetryBackoff and capped at RetryMaxBackoff.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.RetryBackoff
	for i := 1; i < attempt && delay < c.opts.RetryMaxBackoff; i++ {
		delay *= 2
	}
	if delay > c.opts.RetryMaxBackoff {
		delay = c.opts.RetryMaxBackoff
	}
	return delay
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.backoffDelay(attempt)

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
