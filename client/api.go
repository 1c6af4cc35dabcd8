package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/cheerily/cheerily/db"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBatchSize = 25
	maxBodySize      = 1 << 20

	// A listing child with a long self text and previews can reach tens of KiB.
	listingBaseSize = 256 << 10
	listingPostSize = 64 << 10
)

// --- HTTP Helper Functions (kept private) ---

// createRequest creates an HTTP GET request with bearer authorization.
func createRequest(ctx context.Context, urlStr, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		log.Error().Err(err).Str("url", urlStr).Msg("Failed to create HTTP request object")
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "bearer "+accessToken)
	}
	return req, nil
}

// sendRequest sends the request and classifies the outcome into the client errors.
// The caller owns the body of a successful response.
func sendRequest(httpClient *http.Client, req *http.Request) (*http.Response, error) {
	log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Sending HTTP request")
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drainAndClose(resp)
		log.Warn().Int("status", resp.StatusCode).Str("url", req.URL.String()).Msg("Access token rejected")
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		drainAndClose(resp)
		log.Error().Int("status", resp.StatusCode).Str("url", req.URL.String()).Msg("HTTP request returned non-OK status")
		return nil, fmt.Errorf("%w: unexpected HTTP status %d %s", ErrTransport, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

// readResponseBody reads the body and closes it. A body longer than limit
// bytes is rejected rather than cut short.
func readResponseBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrTransport, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrMalformedResponse, limit)
	}
	return body, nil
}

// listingBodyLimit is the largest listing accepted for a page of batchSize posts.
func listingBodyLimit(batchSize int) int64 {
	return listingBaseSize + int64(batchSize)*listingPostSize
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
}

// FeedClient fetches cheers from a subreddit listing on the OAuth API host.
// It follows Reddit's "after" cursor so consecutive batches page forward.
// With a cursor repository the position survives across processes.
type FeedClient struct {
	httpClient *http.Client
	feedURL    string
	batchSize  int
	cursors    db.CursorRepository

	mu     sync.Mutex
	after  string
	loaded bool
}

// NewFeedClient creates a FeedClient. A non-positive batchSize uses DefaultBatchSize.
func NewFeedClient(httpClient *http.Client, feedURL string, batchSize int) *FeedClient {
	if httpClient == nil {
		httpClient = NewHTTPClient("", DefaultRequestTimeout, DefaultRequestsPerMinute)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &FeedClient{httpClient: httpClient, feedURL: feedURL, batchSize: batchSize}
}

// WithCursorRepository makes the client resume from, and record, the stored cursor.
func (c *FeedClient) WithCursorRepository(cursors db.CursorRepository) *FeedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors = cursors
	c.loaded = false
	return c
}

// FetchBatch retrieves the next page of the feed.
func (c *FeedClient) FetchBatch(ctx context.Context, accessToken string) ([]db.Cheer, error) {
	after, err := c.cursor(ctx)
	if err != nil {
		return nil, err
	}

	pageURL, err := c.pageURL(after)
	if err != nil {
		return nil, err
	}
	req, err := createRequest(ctx, pageURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp, err := sendRequest(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp, listingBodyLimit(c.batchSize))
	if err != nil {
		return nil, err
	}

	page, err := parseListing(body)
	if err != nil {
		return nil, err
	}

	// An empty cursor means the listing ended; start over from the top.
	if err := c.setCursor(ctx, page.Data.After); err != nil {
		return nil, err
	}

	cheers := page.cheers()
	log.Info().Int("count", len(cheers)).Str("after", page.Data.After).Msg("Fetched feed batch")
	return cheers, nil
}

// ResetCursor makes the next FetchBatch start from the top of the listing.
func (c *FeedClient) ResetCursor(ctx context.Context) error {
	return c.setCursor(ctx, "")
}

func (c *FeedClient) cursor(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursors != nil && !c.loaded {
		after, err := c.cursors.Get(ctx, c.feedURL)
		if err != nil {
			return "", fmt.Errorf("failed to load feed cursor: %w", err)
		}
		c.after = after
		c.loaded = true
		log.Debug().Str("after", after).Msg("Resuming feed from stored cursor")
	}
	return c.after, nil
}

func (c *FeedClient) setCursor(ctx context.Context, after string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.after = after
	if c.cursors == nil {
		return nil
	}
	c.loaded = true
	if err := c.cursors.Save(ctx, c.feedURL, after); err != nil {
		return fmt.Errorf("failed to save feed cursor: %w", err)
	}
	return nil
}

func (c *FeedClient) pageURL(after string) (string, error) {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid feed url: %w", ErrTransport, err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.batchSize))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseListing decodes and validates a listing page. Any entry missing or
// mistyping title, url or permalink rejects the whole page.
func parseListing(body []byte) (*listing, error) {
	var page listing
	if err := json.Unmarshal(body, &page); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse feed JSON")
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := validate.Struct(&page); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			log.Error().Str("field", verrs[0].Namespace()).Str("tag", verrs[0].Tag()).Msg("Feed entry failed validation")
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &page, nil
}
