// Package platforms holds what the database, compute and frontend adapters
// share: construction options, dry-run naming and the health check
// contract. The adapters themselves live in the neon, railway and vercel
// subpackages.
package platforms

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
	"github.com/trinitydeploy/trinity/pkg/transports/httpapi"
)

// Options configures an adapter.
type Options struct {
	// DryRun skips every network call and returns synthetic results.
	DryRun bool

	// Logger receives one line per platform action.
	Logger zerolog.Logger

	// Tracer and Metrics instrument API calls. Both may be nil.
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics

	// HTTPClient overrides the default http.Client.
	HTTPClient *http.Client

	// RequestTimeout and MaxRetries override the transport defaults when
	// positive.
	RequestTimeout time.Duration
	MaxRetries     int
}

// TransportConfig returns the httpapi configuration for one platform API.
func (o Options) TransportConfig(baseURL, token string) httpapi.Config {
	cfg := httpapi.DefaultConfig(baseURL, token)
	if o.RequestTimeout > 0 {
		cfg.RequestTimeout = o.RequestTimeout
	}
	if o.MaxRetries > 0 {
		cfg.MaxRetries = o.MaxRetries
	}
	return cfg
}

// ClientOptions converts o into transport options.
func (o Options) ClientOptions() []httpapi.Option {
	return []httpapi.Option{
		httpapi.WithLogger(o.Logger),
		httpapi.WithTelemetry(o.Tracer, o.Metrics),
		httpapi.WithHTTPClient(o.HTTPClient),
	}
}

// Verifier checks that an adapter's credentials are accepted.
type Verifier interface {
	Name() string
	Verify(ctx context.Context) error
}

// DryRunID returns the synthetic id reported for a resource in dry-run
// mode, e.g. "dry-neon-shop-db".
func DryRunID(platform, name string) string {
	return "dry-" + platform + "-" + Slug(name)
}

// Slug lower-cases s and replaces anything outside [a-z0-9-] with a hyphen.
func Slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
