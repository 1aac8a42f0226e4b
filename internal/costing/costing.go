// Package costing implements query-type detection and the fixed credit and
// per-token cost tables used to populate each chat reply's metadata block.
package costing

import (
	"github.com/llmgate/llmgate/pkg/models"
)

type QueryType string

const (
	QueryImageAnalysis    QueryType = "image_analysis"
	QueryDocumentAnalysis QueryType = "document_analysis"
	QueryBasic            QueryType = "basic_query"
	QueryComplex          QueryType = "complex_query"
	QueryFileSearch       QueryType = "file_search"
)

// creditTable is fixed. file_search is not produced by DetectQueryType (the
// detection rules never select it) but is kept for callers that classify a
// query as a file search explicitly.
var creditTable = map[QueryType]float64{
	QueryBasic:            1,
	QueryFileSearch:       2,
	QueryDocumentAnalysis: 3,
	QueryImageAnalysis:    4,
	QueryComplex:          5,
}

// EmbeddingCredits is the fixed credit cost of an embedding call.
const EmbeddingCredits = 0.5

// CreditsFor returns the fixed credit cost for a query type.
func CreditsFor(qt QueryType) float64 {
	return creditTable[qt]
}

// tokenCost holds USD-per-token rates (not per-1K); providerCosts applies
// them directly, token by token.
type tokenCost struct {
	ChatInput  float64
	ChatOutput float64
	Embedding  float64
}

var providerCosts = map[string]tokenCost{
	"openai": {ChatInput: 1.5e-7, ChatOutput: 6e-7, Embedding: 2e-8},
	"gemini": {ChatInput: 7.5e-8, ChatOutput: 3e-7, Embedding: 2.5e-8},
}

// ChatCostUSD computes the dollar cost of a chat call from prompt/completion
// token counts and the provider that served it.
func ChatCostUSD(provider string, usage models.Usage) float64 {
	c, ok := providerCosts[provider]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)*c.ChatInput + float64(usage.CompletionTokens)*c.ChatOutput
}

// EmbeddingCostUSD computes the dollar cost of an embedding call.
func EmbeddingCostUSD(provider string, tokens int) float64 {
	c, ok := providerCosts[provider]
	if !ok {
		return 0
	}
	return float64(tokens) * c.Embedding
}

// DetectQueryType classifies a chat job for credit accounting: image
// content (file or inline part) wins over pdf, which wins over a
// length-based split of the last user message.
func DetectQueryType(messages []models.Message, files []models.FileDescriptor) QueryType {
	hasImage := false
	hasPDF := false
	for _, f := range files {
		switch f.Kind {
		case models.FileImage:
			hasImage = true
		case models.FilePDF:
			hasPDF = true
		}
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Type == models.ContentImageURL {
				hasImage = true
			}
		}
	}

	switch {
	case hasImage:
		return QueryImageAnalysis
	case hasPDF:
		return QueryDocumentAnalysis
	}

	lastUserText := lastUserMessageText(messages)
	switch {
	case len(lastUserText) < 50:
		return QueryBasic
	case len(lastUserText) > 200:
		return QueryComplex
	default:
		return QueryBasic
	}
}

func lastUserMessageText(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != models.RoleUser {
			continue
		}
		if m.RawString != "" {
			return m.RawString
		}
		for _, p := range m.Parts {
			if p.Type == models.ContentText {
				return p.Text
			}
		}
		return ""
	}
	return ""
}
