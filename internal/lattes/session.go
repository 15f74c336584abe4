// Package lattes implements the HTTP access layer for the CNPq researcher
// directory: session bootstrap, paginated search listings, and the fallback
// chain that retrieves profile documents past the anti-automation layer.
package lattes

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/fmatlas/lattes-harvester/internal/resilience"
)

// DefaultBaseURL is the search application root.
const DefaultBaseURL = "https://buscatextual.cnpq.br/buscatextual"

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
	altUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// SessionConfig tunes the shared HTTP session.
type SessionConfig struct {
	BaseURL      string
	UserAgent    string
	AltUserAgent string

	// Timeout bounds each request end to end.
	Timeout time.Duration

	// RequestDelay paces successive requests through this session.
	RequestDelay time.Duration

	// InsecureTLS skips certificate verification. The target service runs
	// behind a misconfigured terminator that rejects modern handshakes.
	InsecureTLS bool

	Retry resilience.RetryConfig
}

// DefaultSessionConfig mirrors a regular browser visit closely enough to
// pass the service's passive fingerprinting.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BaseURL:      DefaultBaseURL,
		UserAgent:    defaultUserAgent,
		AltUserAgent: altUserAgent,
		Timeout:      30 * time.Second,
		RequestDelay: 2 * time.Second,
		InsecureTLS:  true,
		Retry:        resilience.DefaultRetryConfig(),
	}
}

// Session owns the cookie-scoped HTTP state shared by discovery and
// enrichment. One Session maps to one identity toward the remote host; the
// cookie jar carries the server-issued session across strategies.
type Session struct {
	cfg     SessionConfig
	client  *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	userAgent string
}

// NewSession builds a Session with a fresh cookie jar.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.AltUserAgent == "" {
		cfg.AltUserAgent = altUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "lattes: create cookie jar")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
	}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Session{
		cfg: cfg,
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
	}, nil
}

// BaseURL returns the configured search application root.
func (s *Session) BaseURL() string { return s.cfg.BaseURL }

// SwapIdentity replaces the declared user agent and returns a restore
// function. Callers must invoke restore regardless of outcome.
func (s *Session) SwapIdentity(userAgent string) (restore func()) {
	s.mu.Lock()
	prev := s.userAgent
	s.userAgent = userAgent
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.userAgent = prev
		s.mu.Unlock()
	}
}

// AltUserAgent returns the configured alternate identity string.
func (s *Session) AltUserAgent() string { return s.cfg.AltUserAgent }

// Get fetches rawURL with the optional query parameters and returns the
// response body. Transient failures are retried with backoff.
func (s *Session) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	return s.do(ctx, http.MethodGet, rawURL, params, nil)
}

// PostForm submits a form-encoded POST to rawURL.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	return s.do(ctx, http.MethodPost, rawURL, nil, form)
}

func (s *Session) do(ctx context.Context, method, rawURL string, params, form url.Values) ([]byte, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	cfg := s.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(method + " " + rawURL)
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var bodyReader io.Reader
		if form != nil {
			bodyReader = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return nil, eris.Wrapf(err, "lattes: build %s request", method)
		}
		s.setHeaders(req)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "lattes: %s %s", method, rawURL)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, eris.Wrap(err, "lattes: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("lattes: status %d from %s", resp.StatusCode, rawURL),
				resp.StatusCode,
			)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("lattes: status %d from %s", resp.StatusCode, rawURL)
		}
		return body, nil
	})
}

func (s *Session) setHeaders(req *http.Request) {
	s.mu.Lock()
	ua := s.userAgent
	s.mu.Unlock()

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
