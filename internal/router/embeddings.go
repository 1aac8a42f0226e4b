package router

import (
	"context"
	"fmt"

	"github.com/llmgate/llmgate/internal/providers"
)

// EmbeddingRouter is analogous to ChatRouter but for the embeddings
// endpoint. There is no queueing: embeddings are synchronous and do not
// retry across providers, since embedding requests do not carry a
// configured fallback provider in the source design.
type EmbeddingRouter struct {
	byName          map[string]providers.Driver
	defaultProvider string
}

func NewEmbeddingRouter(defaultProvider string, drivers ...providers.Driver) *EmbeddingRouter {
	byName := make(map[string]providers.Driver, len(drivers))
	for _, d := range drivers {
		byName[d.Name()] = d
	}
	return &EmbeddingRouter{byName: byName, defaultProvider: defaultProvider}
}

func (r *EmbeddingRouter) SelectProvider(requested string) string {
	if requested != "" {
		if _, ok := r.byName[requested]; ok {
			return requested
		}
	}
	return r.defaultProvider
}

func (r *EmbeddingRouter) Embed(ctx context.Context, provider string, texts []string) (*providers.EmbeddingResult, error) {
	d, ok := r.byName[provider]
	if !ok {
		return nil, fmt.Errorf("embedding router: unknown provider %q", provider)
	}
	ed, ok := d.(providers.EmbeddingDriver)
	if !ok {
		return nil, fmt.Errorf("embedding router: provider %q does not support embeddings", provider)
	}
	return ed.Embed(ctx, texts)
}
