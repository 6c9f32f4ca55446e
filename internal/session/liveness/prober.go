package liveness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"intellib/pkg/platform/sentinel"
)

const defaultProbeTimeout = 2 * time.Second

// Prober checks whether the backend is reachable and healthy.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber issues GET requests against the backend health endpoint. Any
// 2xx response is healthy; everything else wraps sentinel.ErrUnavailable.
type HTTPProber struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProbeClient overrides the HTTP client.
func WithProbeClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProber probes healthURL, e.g. "http://localhost:5000/api/health".
func NewHTTPProber(healthURL string, opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		url:     healthURL,
		client:  &http.Client{},
		timeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: health endpoint returned %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	return nil
}
