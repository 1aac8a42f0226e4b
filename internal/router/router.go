// Package router selects a provider adapter for a canonical request and
// retries against a fallback provider on failure.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/pkg/models"
)

// ErrAllProvidersFailed is raised when the primary call fails and either no
// alternative has credentials or the alternative also fails.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ChatRouter holds the configured drivers in registration order and applies
// the primary-then-fallback algorithm.
type ChatRouter struct {
	drivers         []providers.Driver
	byName          map[string]providers.Driver
	defaultProvider string
	allowOverride   bool
}

func NewChatRouter(defaultProvider string, allowOverride bool, drivers ...providers.Driver) *ChatRouter {
	byName := make(map[string]providers.Driver, len(drivers))
	for _, d := range drivers {
		byName[d.Name()] = d
	}
	return &ChatRouter{
		drivers:         drivers,
		byName:          byName,
		defaultProvider: defaultProvider,
		allowOverride:   allowOverride,
	}
}

// SelectProvider applies the admission-time selection rule: an explicit
// request override is honored only when overrides are enabled and the named
// provider is configured; otherwise the configured primary is used. Unknown
// providers are silently coerced to the default rather than surfaced as an
// error.
func (r *ChatRouter) SelectProvider(requested string) string {
	if requested != "" && r.allowOverride {
		if _, ok := r.byName[requested]; ok {
			return requested
		}
	}
	return r.defaultProvider
}

// Route calls the primary provider; on any failure it retries exactly once
// against the first alternative provider with credentials configured. The
// credential check happens only at fallback time — a primary configured
// without credentials always throws and always falls back, by design
// preserved from the source behavior this system is modeled on.
func (r *ChatRouter) Route(ctx context.Context, primary string, req *providers.InvokeRequest) (*models.CanonicalResponse, string, error) {
	primaryDriver, ok := r.byName[primary]
	if !ok {
		return nil, "", fmt.Errorf("router: unknown provider %q", primary)
	}

	resp, err := primaryDriver.Invoke(ctx, req)
	if err == nil {
		return resp, primary, nil
	}
	log.Warn().Err(err).Str("provider", primary).Msg("primary provider failed, attempting fallback")

	var alt providers.Driver
	for _, d := range r.drivers {
		if d.Name() == primary {
			continue
		}
		if d.HasCredentials() {
			alt = d
			break
		}
	}
	if alt == nil {
		return nil, "", fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, err)
	}

	resp, altErr := alt.Invoke(ctx, req)
	if altErr != nil {
		return nil, "", fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, altErr)
	}
	return resp, alt.Name(), nil
}

// Driver exposes a configured driver by name, used by the ticket classifier
// to route to the same provider family as the job's primary provider.
func (r *ChatRouter) Driver(name string) (providers.Driver, bool) {
	d, ok := r.byName[name]
	return d, ok
}
