package client

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRequestsPerMinute = 60
)

// limitedTransport stamps every request with the User-Agent Reddit requires and
// waits on a shared limiter before handing it to the wrapped RoundTripper.
type limitedTransport struct {
	base      http.RoundTripper
	limiter   *rate.Limiter
	userAgent string
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns the client every upstream call goes through.
// A non-positive requestsPerMinute disables rate limiting.
func NewHTTPClient(userAgent string, timeout time.Duration, requestsPerMinute int) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &limitedTransport{
			base:      http.DefaultTransport,
			limiter:   limiter,
			userAgent: userAgent,
		},
	}
}
