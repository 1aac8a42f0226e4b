// Package ocr implements the auxiliary image-OCR endpoint by asking an
// OpenAI-compatible chat-completion model to transcribe visible text in an
// image.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	chatEndpoint  = "https://api.openai.com/v1/chat/completions"
	visionModel   = "gpt-4o"
	noTextToken   = "[NO_TEXT_DETECTED]"
	systemPrompt  = "You transcribe visible text from images exactly as written. " +
		"If the image contains no readable text, reply with exactly " + noTextToken + " and nothing else."
	userPromptTpl = "Transcribe any text visible in this image."
	// NoTextPlaceholder substitutes for an empty reply or the detector token.
	NoTextPlaceholder = "Visual content only. No text detected in this image."
)

type Recognizer struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

func NewRecognizer(apiKey string) *Recognizer {
	return &Recognizer{apiKey: apiKey, client: &http.Client{Timeout: 60 * time.Second}, endpoint: chatEndpoint}
}

// WithEndpoint overrides the chat-completion endpoint, used by tests to
// point at a local server instead of the real OpenAI API.
func (r *Recognizer) WithEndpoint(endpoint string) *Recognizer {
	r.endpoint = endpoint
	return r
}

type visionMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type visionContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *visionImgURL `json:"image_url,omitempty"`
}

type visionImgURL struct {
	URL string `json:"url"`
}

// Recognize asks the vision model to transcribe text visible in imageURL.
func (r *Recognizer) Recognize(ctx context.Context, imageURL string) (string, error) {
	wire := struct {
		Model    string          `json:"model"`
		Messages []visionMessage `json:"messages"`
	}{
		Model: visionModel,
		Messages: []visionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []visionContentPart{
				{Type: "text", Text: userPromptTpl},
				{Type: "image_url", ImageURL: &visionImgURL{URL: imageURL}},
			}},
		},
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	var wireResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(wireResp.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}

	text := strings.TrimSpace(wireResp.Choices[0].Message.Content)
	if text == "" || strings.Contains(text, noTextToken) {
		return NoTextPlaceholder, nil
	}
	return text, nil
}
