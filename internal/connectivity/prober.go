package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
)

// HTTPProber measures the round trip of a HEAD request against any
// low-cost reachable endpoint.
type HTTPProber struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = models.DefaultProbeTimeout
	}
	return &HTTPProber{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	return latency, nil
}
