package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const callbackPage = `<!doctype html><html><body><p>Cheerily received the authorization. You can close this window.</p></body></html>`

// NewRedirectRouter serves the OAuth callback path and forwards the full
// redirect URL of the first hit to results.
func NewRedirectRouter(redirectURI string, results chan<- string) (http.Handler, error) {
	base, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	path := base.Path
	if path == "" {
		path = "/"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		callback := *base
		callback.RawQuery = req.URL.RawQuery
		select {
		case results <- callback.String():
		default:
			log.Warn().Msg("Ignoring repeated authorization callback")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(callbackPage))
	})
	return r, nil
}

// ListenForRedirect serves the redirect URI on the loopback interface until the
// first callback arrives or ctx ends.
func ListenForRedirect(ctx context.Context, redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("redirect uri %q must carry an explicit port", redirectURI)
	}

	results := make(chan string, 1)
	router, err := NewRedirectRouter(redirectURI, results)
	if err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", u.Host).Msg("Waiting for the authorization redirect")
	select {
	case redirect := <-results:
		return redirect, nil
	case err := <-serveErr:
		return "", fmt.Errorf("redirect listener failed: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CaptureRedirectInBrowser opens authURL in a Chrome window and returns the URL
// the browser lands on once Reddit redirects back to redirectURI.
func CaptureRedirectInBrowser(ctx context.Context, authURL, redirectURI string, timeout time.Duration) (string, error) {
	browserCtx, cancel, err := createChromeContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	var finalURL string
	err = chromedp.Run(timeoutCtx,
		chromedp.Navigate(authURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				var currentURL string
				if err := chromedp.Location(&currentURL).Do(ctx); err != nil {
					return err
				}
				if isRedirectTo(currentURL, redirectURI) {
					finalURL = currentURL
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(500 * time.Millisecond):
				}
			}
		}),
	)
	return finalURL, err
}

// isRedirectTo reports whether current is a callback to redirectURI carrying a state.
func isRedirectTo(current, redirectURI string) bool {
	return strings.HasPrefix(current, redirectURI) && strings.Contains(current, "state=")
}

func createChromeContext(parent context.Context) (context.Context, context.CancelFunc, error) {
	var execPath string
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			execPath = p
			break
		}
	}
	if execPath == "" {
		return nil, nil, fmt.Errorf("no Chrome or Chromium executable found in PATH")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", false),
	)
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelContext := chromedp.NewContext(allocatorCtx, chromedp.WithLogf(log.Debug().Msgf))
	return ctx, func() {
		cancelContext()
		cancelAllocator()
	}, nil
}
