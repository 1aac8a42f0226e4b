// Package providers implements one adapter per upstream LLM family. Each
// adapter translates a canonical request into a provider's wire format,
// performs the HTTP call under a fixed timeout, and translates the reply
// back into the canonical response shape. Adapters never retry; retrying
// across providers is the router's job.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/llmgate/llmgate/pkg/models"
)

// CallTimeout bounds every upstream HTTP call, per provider adapter.
const CallTimeout = 180 * time.Second

// ProviderError wraps any failure raised by an adapter: network, auth,
// malformed wire response, or upstream content-policy rejection. The
// router treats any ProviderError as fallback-eligible.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// InvokeRequest is the canonical shape every adapter accepts.
type InvokeRequest struct {
	Messages    []models.Message
	Files       []models.FileDescriptor
	Temperature float64
	Tools       []models.ToolSchema
	ToolChoice  interface{}
	// JSONOnly asks the provider to constrain its reply to a JSON object,
	// used by the ticket classifier.
	JSONOnly bool
}

// Driver is implemented once per upstream family.
type Driver interface {
	// Name is the provider identifier used in configuration and routing
	// ("openai", "gemini").
	Name() string
	// HasCredentials reports whether this driver is configured with an API
	// key and can be considered for fallback.
	HasCredentials() bool
	// Invoke performs the call and returns a canonical response.
	Invoke(ctx context.Context, req *InvokeRequest) (*models.CanonicalResponse, error)
}

// EmbeddingDriver is implemented by drivers that also expose an embeddings
// endpoint. Not every Driver implements this.
type EmbeddingDriver interface {
	Embed(ctx context.Context, texts []string) (*EmbeddingResult, error)
}

// EmbeddingResult mirrors the OpenAI embeddings wire shape, which is what
// /embeddings returns regardless of which provider served the request.
type EmbeddingResult struct {
	Model      string
	Embeddings [][]float64
	Usage      models.Usage
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: CallTimeout}
}

func hasImagePart(messages []models.Message, files []models.FileDescriptor) bool {
	for _, f := range files {
		if f.Kind == models.FileImage {
			return true
		}
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Type == models.ContentImageURL {
				return true
			}
		}
	}
	return false
}
