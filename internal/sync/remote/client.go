// Package remote wraps the remote REST endpoint (PostgREST-style, one
// resource per table) behind tenant-scoped upload, update, delete, and
// delta-download calls with bounded exponential-backoff retry.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/logging"
	"github.com/niyaskv/offsync/internal/models"
	"github.com/niyaskv/offsync/internal/session"
)

const (
	defaultPathPrefix  = "/rest/v1"
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultTimeout     = 30 * time.Second
)

// Result is the outcome of a single remote mutation. Attempts counts HTTP
// attempts made, including the successful one, so callers can audit how many
// retries a delivery needed.
type Result struct {
	Success   bool
	ErrorKind errors.ErrorCode
	Message   string
	Attempts  int
}

func success(message string, attempts int) Result {
	return Result{Success: true, Message: message, Attempts: attempts}
}

func failure(err error, attempts int) Result {
	return Result{Success: false, ErrorKind: errors.Code(err), Message: err.Error(), Attempts: attempts}
}

// Client is a stateless wrapper around the remote endpoint. All methods are
// tenant-scoped and safe for concurrent use.
type Client struct {
	baseURL     string
	pathPrefix  string
	apiKey      string
	http        *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxAttempts caps attempts per call, including the first.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithBaseDelay sets the initial retry delay, doubled per attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithPathPrefix overrides the resource path prefix.
func WithPathPrefix(p string) Option {
	return func(c *Client) { c.pathPrefix = strings.TrimSuffix(p, "/") }
}

// NewClient creates a Client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		pathPrefix:  defaultPathPrefix,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload creates a new remote record. A duplicate-key response (409) is
// treated as success: the record already exists, which is an acceptable
// outcome of at-least-once delivery.
func (c *Client) Upload(ctx context.Context, sess session.Session, table string, payload json.RawMessage) Result {
	if !sess.Valid() {
		return failure(errors.New(errors.ErrTenantMissing, "tenant id required for sync"), 0)
	}
	body := ensureTenant(payload, sess.TenantID)

	var attempts int
	var duplicate bool
	err := c.withRetry(ctx, func() error {
		attempts++
		duplicate = false
		resp, err := c.do(ctx, sess, http.MethodPost, c.resourceURL(table, nil), body)
		if err != nil {
			return err
		}
		defer drain(resp)
		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode == http.StatusConflict:
			duplicate = true
			return nil
		default:
			return classify(resp)
		}
	})
	if err != nil {
		return failure(err, attempts)
	}
	if duplicate {
		return success("record already exists", attempts)
	}
	return success("", attempts)
}

// Update replaces a remote record. The filter includes both record id and
// tenant id so a forged payload cannot reach another tenant's row.
func (c *Client) Update(ctx context.Context, sess session.Session, table, recordID string, payload json.RawMessage) Result {
	if !sess.Valid() {
		return failure(errors.New(errors.ErrTenantMissing, "tenant id required for sync"), 0)
	}
	body := ensureTenant(payload, sess.TenantID)
	u := c.resourceURL(table, url.Values{
		"id":        {"eq." + recordID},
		"tenant_id": {"eq." + sess.TenantID},
	})

	var attempts int
	err := c.withRetry(ctx, func() error {
		attempts++
		resp, err := c.do(ctx, sess, http.MethodPut, u, body)
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		return classify(resp)
	})
	if err != nil {
		return failure(err, attempts)
	}
	return success("", attempts)
}

// Delete removes a remote record, tenant-scoped like Update.
func (c *Client) Delete(ctx context.Context, sess session.Session, table, recordID string) Result {
	if !sess.Valid() {
		return failure(errors.New(errors.ErrTenantMissing, "tenant id required for sync"), 0)
	}
	u := c.resourceURL(table, url.Values{
		"id":        {"eq." + recordID},
		"tenant_id": {"eq." + sess.TenantID},
	})

	var attempts int
	err := c.withRetry(ctx, func() error {
		attempts++
		resp, err := c.do(ctx, sess, http.MethodDelete, u, nil)
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		return classify(resp)
	})
	if err != nil {
		return failure(err, attempts)
	}
	return success("", attempts)
}

// DownloadDelta fetches this tenant's records with updated_at after since
// (all records when since is zero), ordered ascending by updated_at so a
// pull resumed after a crash cannot skip a record that ties the watermark.
// Unparsable elements are skipped and logged, never fatal.
func (c *Client) DownloadDelta(ctx context.Context, sess session.Session, table string, since time.Time) ([]models.Record, error) {
	if !sess.Valid() {
		return nil, errors.New(errors.ErrTenantMissing, "tenant id required for sync")
	}

	query := url.Values{
		"tenant_id": {"eq." + sess.TenantID},
		"order":     {"updated_at.asc"},
	}
	if !since.IsZero() {
		query.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}
	u := c.resourceURL(table, query)

	var raw []json.RawMessage
	err := c.withRetry(ctx, func() error {
		resp, err := c.do(ctx, sess, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode != http.StatusOK {
			return classify(resp)
		}
		raw = raw[:0]
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			// A malformed 200 body will not improve on retry.
			return backoff.Permanent(errors.Wrap(errors.ErrPayloadInvalid, "unparsable download response", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(raw))
	for _, doc := range raw {
		rec, err := models.ParseRecord(doc)
		if err != nil {
			logging.Warn("skipping unparsable remote record", map[string]interface{}{
				"table": table,
				"error": err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// resourceURL builds the table resource URL with optional query parameters.
func (c *Client) resourceURL(table string, query url.Values) string {
	u := c.baseURL + c.pathPrefix + "/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do issues one HTTP request with auth headers. Transport failures come back
// as retryable errors.
func (c *Client) do(ctx context.Context, sess session.Session, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetworkRetryable, "network error", err)
	}
	return resp, nil
}

// classify maps a non-success response to the retry taxonomy: 5xx and 429
// are retryable, every other 4xx is terminal, 401/403 carry the auth code.
func classify(resp *http.Response) error {
	msg := readErrorBody(resp)
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrNetworkRetryable, "HTTP %d: %s", resp.StatusCode, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(errors.Newf(errors.ErrRemoteAuth, "HTTP %d: %s", resp.StatusCode, msg))
	default:
		return backoff.Permanent(errors.Newf(errors.ErrRemoteTerminal, "HTTP %d: %s", resp.StatusCode, msg))
	}
}

// withRetry runs op with bounded exponential backoff. Terminal errors are
// marked Permanent by classify and abort immediately; ctx cancellation cuts
// the retry wait short.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx))
	if pe, ok := err.(*backoff.PermanentError); ok {
		return pe.Unwrap()
	}
	return err
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return "unknown error"
	}
	return string(bytes.TrimSpace(data))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// ensureTenant injects tenant_id into a JSON document when absent. Documents
// that fail to parse are passed through untouched; the remote rejects them
// with a terminal error which surfaces in the queue.
func ensureTenant(payload json.RawMessage, tenantID string) []byte {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload
	}
	if v, ok := doc["tenant_id"]; !ok || v == nil || v == "" {
		doc["tenant_id"] = tenantID
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return payload
	}
	return out
}
