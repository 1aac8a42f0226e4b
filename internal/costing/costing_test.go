package costing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/pkg/models"
)

func TestDetectQueryTypeImageFile(t *testing.T) {
	files := []models.FileDescriptor{{Kind: models.FileImage, URL: "http://x/y.jpg"}}
	require.Equal(t, QueryImageAnalysis, DetectQueryType(nil, files))
}

func TestDetectQueryTypeImagePart(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Parts: []models.ContentPart{
			{Type: models.ContentText, Text: "what is this?"},
			{Type: models.ContentImageURL, ImageURL: &models.ImageURL{URL: "http://x/y.jpg"}},
		}},
	}
	require.Equal(t, QueryImageAnalysis, DetectQueryType(messages, nil))
}

func TestDetectQueryTypePDF(t *testing.T) {
	files := []models.FileDescriptor{{Kind: models.FilePDF, URL: "http://x/y.pdf"}}
	require.Equal(t, QueryDocumentAnalysis, DetectQueryType(nil, files))
}

func TestDetectQueryTypeBasicShort(t *testing.T) {
	messages := []models.Message{{Role: models.RoleUser, RawString: "hi"}}
	require.Equal(t, QueryBasic, DetectQueryType(messages, nil))
}

func TestDetectQueryTypeComplexLong(t *testing.T) {
	messages := []models.Message{{Role: models.RoleUser, RawString: strings.Repeat("a", 201)}}
	require.Equal(t, QueryComplex, DetectQueryType(messages, nil))
}

func TestCreditsForMatchesFixedTable(t *testing.T) {
	require.Equal(t, 1.0, CreditsFor(QueryBasic))
	require.Equal(t, 2.0, CreditsFor("file_search"))
	require.Equal(t, 3.0, CreditsFor(QueryDocumentAnalysis))
	require.Equal(t, 4.0, CreditsFor(QueryImageAnalysis))
	require.Equal(t, 5.0, CreditsFor(QueryComplex))
	require.Equal(t, 0.5, EmbeddingCredits)
}

func TestChatCostUSD(t *testing.T) {
	cost := ChatCostUSD("openai", models.Usage{PromptTokens: 1000, CompletionTokens: 1000})
	require.InDelta(t, 1000*1.5e-7+1000*6e-7, cost, 1e-12)
}

func TestChatCostUSDUnknownProvider(t *testing.T) {
	require.Equal(t, 0.0, ChatCostUSD("does-not-exist", models.Usage{PromptTokens: 100}))
}
