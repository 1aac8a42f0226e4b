package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/llmgate/llmgate/pkg/models"
)

const (
	openAIChatEndpoint   = "https://api.openai.com/v1/chat/completions"
	openAIEmbedEndpoint  = "https://api.openai.com/v1/embeddings"
	openAIChatModel      = "gpt-4o-mini"
	openAIVisionModel    = "gpt-4o"
	openAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAIDriver calls the OpenAI chat-completions and embeddings endpoints.
// Its wire reply is already shaped like the canonical response, so no
// translation layer is needed on the inbound side.
type OpenAIDriver struct {
	apiKey string
	client *http.Client
}

var _ Driver = (*OpenAIDriver)(nil)
var _ EmbeddingDriver = (*OpenAIDriver)(nil)

func NewOpenAIDriver(apiKey string) *OpenAIDriver {
	return &OpenAIDriver{apiKey: apiKey, client: newHTTPClient()}
}

func (d *OpenAIDriver) Name() string { return "openai" }
func (d *OpenAIDriver) HasCredentials() bool { return d.apiKey != "" }

type openAIMessage struct {
	Role       string            `json:"role"`
	Content    interface{}       `json:"content"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type openAIRequest struct {
	Model          string                 `json:"model"`
	Messages       []openAIMessage        `json:"messages"`
	Temperature    float64                `json:"temperature"`
	Tools          []models.ToolSchema    `json:"tools,omitempty"`
	ToolChoice     interface{}            `json:"tool_choice,omitempty"`
	ResponseFormat map[string]string      `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role      string            `json:"role"`
			Content   *string           `json:"content"`
			ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// chooseModel picks the vision-capable model when any file or message part
// is an image; otherwise the plain chat model.
func (d *OpenAIDriver) chooseModel(req *InvokeRequest) string {
	if hasImagePart(req.Messages, req.Files) {
		return openAIVisionModel
	}
	return openAIChatModel
}

// foldLegacyFiles folds a legacy files list into the last user message,
// turning its content into an ordered text+image_url part sequence.
func foldLegacyFiles(messages []models.Message, files []models.FileDescriptor) []models.Message {
	if len(files) == 0 {
		return messages
	}
	lastUser := -1
	for i, m := range messages {
		if m.Role == models.RoleUser {
			lastUser = i
		}
	}
	if lastUser == -1 {
		return messages
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)

	target := out[lastUser]
	var parts []models.ContentPart
	if target.Parts != nil {
		parts = append(parts, target.Parts...)
	} else if target.RawString != "" {
		parts = append(parts, models.ContentPart{Type: models.ContentText, Text: target.RawString})
	}
	for _, f := range files {
		if f.Kind != models.FileImage {
			continue
		}
		url := f.URL
		if f.IsInline() {
			url = "data:image/png;base64," + f.Base64
		}
		parts = append(parts, models.ContentPart{
			Type:     models.ContentImageURL,
			ImageURL: &models.ImageURL{URL: url},
		})
	}
	target.Parts = parts
	target.RawString = ""
	out[lastUser] = target
	return out
}

func toOpenAIMessages(messages []models.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		om := openAIMessage{Role: string(m.Role), ToolCalls: m.ToolCalls, Name: m.ToolName}
		switch {
		case m.Parts != nil:
			om.Content = m.Parts
		case m.ToolCalls != nil && m.RawString == "":
			om.Content = nil
		default:
			om.Content = m.RawString
		}
		out = append(out, om)
	}
	return out
}

func (d *OpenAIDriver) Invoke(ctx context.Context, req *InvokeRequest) (*models.CanonicalResponse, error) {
	messages := foldLegacyFiles(req.Messages, req.Files)

	wire := openAIRequest{
		Model:       d.chooseModel(req),
		Messages:    toOpenAIMessages(messages),
		Temperature: req.Temperature,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}
	if req.JSONOnly {
		wire.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	var wireResp openAIResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return nil, newProviderError(d.Name(), fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if wireResp.Error != nil {
			msg = wireResp.Error.Message
		}
		return nil, newProviderError(d.Name(), fmt.Errorf("%s", msg))
	}
	if len(wireResp.Choices) == 0 {
		return nil, newProviderError(d.Name(), fmt.Errorf("empty choices"))
	}

	c := wireResp.Choices[0]
	return &models.CanonicalResponse{
		Choices: []models.Choice{{
			Message: models.ResponseMessage{
				Role:      models.Role(c.Message.Role),
				Content:   c.Message.Content,
				ToolCalls: c.Message.ToolCalls,
			},
		}},
		Usage: models.Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
		},
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	wire := openAIEmbedRequest{Model: openAIEmbeddingModel, Input: texts}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEmbedEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	var wireResp openAIEmbedResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return nil, newProviderError(d.Name(), fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if wireResp.Error != nil {
			msg = wireResp.Error.Message
		}
		return nil, newProviderError(d.Name(), fmt.Errorf("%s", msg))
	}

	out := make([][]float64, len(wireResp.Data))
	for _, d := range wireResp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}

	return &EmbeddingResult{
		Model:      wireResp.Model,
		Embeddings: out,
		Usage: models.Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: 0,
		},
	}, nil
}
