// Package auth answers one question for the push channel: is the session
// still authenticated?
package auth

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/logging"
)

// Result is the outcome of a probe.
type Result int

const (
	// Unknown means the probe could not reach a definitive answer, usually
	// because the network is down.
	Unknown Result = iota
	Authenticated
	Unauthenticated
)

func (r Result) String() string {
	switch r {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Prober checks the session.
type Prober interface {
	Probe(ctx context.Context) Result
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) Result

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) Result { return f(ctx) }

const defaultProbeTimeout = 10 * time.Second

// HTTPProbe issues an authenticated GET against a status endpoint.
type HTTPProbe struct {
	client  *api.Client
	path    string
	timeout time.Duration
	log     *logging.Logger
}

// NewHTTPProbe creates a probe for path (api.PathAuthStatus if empty).
func NewHTTPProbe(client *api.Client, path string, log *logging.Logger) *HTTPProbe {
	if path == "" {
		path = api.PathAuthStatus
	}
	return &HTTPProbe{
		client:  client,
		path:    path,
		timeout: defaultProbeTimeout,
		log:     log.Sub("auth"),
	}
}

// Probe reports Unauthenticated only for a 401. Any other failure, including
// transport errors and 5xx responses, is Unknown.
func (p *HTTPProbe) Probe(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Get(ctx, p.path, nil, "application/json")
	if err != nil {
		p.log.Debug().Err(err).Msg("probe failed")
		return Unknown
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Unauthenticated
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Authenticated
	default:
		p.log.Debug().Int("status", resp.StatusCode).Msg("probe inconclusive")
		return Unknown
	}
}
