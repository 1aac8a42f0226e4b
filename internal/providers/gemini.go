package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/pkg/models"
)

const (
	geminiEndpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"
	geminiModel       = "gemini-1.5-flash"

	// SafetyPlaceholder is returned in place of content that Gemini
	// suppressed via a safety filter. This is a successful response, not
	// an error.
	SafetyPlaceholder = "⚠️ I cannot answer this due to safety filters."
)

// GeminiDriver translates canonical requests to and from Gemini's
// generateContent wire format. This is the most delicate adapter: tool
// calls, multimodal parts, and safety blocks all need bespoke handling.
type GeminiDriver struct {
	apiKey string
	client *http.Client
}

var _ Driver = (*GeminiDriver)(nil)

func NewGeminiDriver(apiKey string) *GeminiDriver {
	return &GeminiDriver{apiKey: apiKey, client: newHTTPClient()}
}

func (d *GeminiDriver) Name() string { return "gemini" }
func (d *GeminiDriver) HasCredentials() bool { return d.apiKey != "" }

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *geminiInlineData   `json:"inline_data,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type geminiFuncResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	Tools            []geminiTool           `json:"tools,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildOutbound applies the outbound translation rules, in order, to every
// message, then appends legacy files to the final user message if present.
func (d *GeminiDriver) buildOutbound(ctx context.Context, messages []models.Message, files []models.FileDescriptor) []geminiContent {
	lastUserIdx := -1
	for i, m := range messages {
		if m.Role == models.RoleUser {
			lastUserIdx = i
		}
	}

	out := make([]geminiContent, 0, len(messages))
	for i, m := range messages {
		switch {
		case m.Role == models.RoleTool:
			var content map[string]interface{}
			if m.RawString != "" {
				content = map[string]interface{}{"content": m.RawString}
			} else {
				content = map[string]interface{}{"content": m.Parts}
			}
			out = append(out, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFuncResponse{Name: m.ToolName, Response: content},
				}},
			})
			continue

		case len(m.ToolCalls) > 0:
			parts := make([]geminiPart, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				var args map[string]interface{}
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			out = append(out, geminiContent{Role: "model", Parts: parts})
			continue
		}

		var parts []geminiPart
		if m.Parts != nil {
			for _, p := range m.Parts {
				switch p.Type {
				case models.ContentText:
					parts = append(parts, geminiPart{Text: p.Text})
				case models.ContentImageURL:
					if p.ImageURL == nil {
						continue
					}
					mime, data, err := fetchAndEncodeImage(ctx, d.client, p.ImageURL.URL)
					if err != nil {
						log.Warn().Err(err).Str("url", p.ImageURL.URL).Msg("gemini: skipping image part, fetch failed")
						continue
					}
					parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}})
				}
			}
		} else {
			parts = []geminiPart{{Text: m.RawString}}
		}

		if i == lastUserIdx && len(files) > 0 {
			for _, f := range files {
				if f.Kind != models.FileImage {
					continue
				}
				if f.IsInline() {
					parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/png", Data: f.Base64}})
					continue
				}
				mime, data, err := fetchAndEncodeImage(ctx, d.client, f.URL)
				if err != nil {
					log.Warn().Err(err).Str("url", f.URL).Msg("gemini: skipping legacy file image, fetch failed")
					continue
				}
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}})
			}
		}

		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out
}

func fetchAndEncodeImage(ctx context.Context, client *http.Client, url string) (mimeType, b64 string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("status %d fetching image", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return mime, base64.StdEncoding.EncodeToString(data), nil
}

func toGeminiTools(tools []models.ToolSchema) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, geminiFunctionDecl{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

func (d *GeminiDriver) Invoke(ctx context.Context, req *InvokeRequest) (*models.CanonicalResponse, error) {
	wire := geminiRequest{
		Contents: d.buildOutbound(ctx, req.Messages, req.Files),
		Tools:    toGeminiTools(req.Tools),
		GenerationConfig: geminiGenerationConfig{
			Temperature: req.Temperature,
		},
	}
	if req.JSONOnly {
		wire.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	url := fmt.Sprintf(geminiEndpointFmt, geminiModel, d.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError(d.Name(), err)
	}

	var wireResp geminiResponse
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
	if len(wireResp.Candidates) == 0 {
		return nil, newProviderError(d.Name(), fmt.Errorf("empty candidates"))
	}

	return d.translateInbound(wireResp), nil
}

// translateInbound applies the inbound translation rules to the first
// candidate: tool-call synthesis, plain text, or the safety placeholder.
func (d *GeminiDriver) translateInbound(wireResp geminiResponse) *models.CanonicalResponse {
	cand := wireResp.Candidates[0]
	usage := models.Usage{
		PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
	}

	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		content := SafetyPlaceholder
		return &models.CanonicalResponse{
			Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: &content}}},
			Usage:   usage,
		}
	}

	var calls []models.ToolCall
	for i, p := range cand.Content.Parts {
		if p.FunctionCall == nil {
			continue
		}
		argsJSON, _ := json.Marshal(p.FunctionCall.Args)
		if p.FunctionCall.Args == nil {
			argsJSON = []byte("{}")
		}
		calls = append(calls, models.ToolCall{
			ID:   fmt.Sprintf("call_%d_%d", time.Now().UnixNano(), i),
			Type: "function",
			Function: models.ToolCallFunc{
				Name:      p.FunctionCall.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	if len(calls) > 0 {
		return &models.CanonicalResponse{
			Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: nil, ToolCalls: calls}}},
			Usage:   usage,
		}
	}

	text := cand.Content.Parts[0].Text
	return &models.CanonicalResponse{
		Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: &text}}},
		Usage:   usage,
	}
}
