// Package audio implements the auxiliary audio-transcription endpoint:
// download bytes from a URL and forward them to an OpenAI-compatible
// transcription endpoint.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	transcriptionEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel          = "whisper-1"
	// NoSpeechPlaceholder substitutes for an empty or missing transcript.
	NoSpeechPlaceholder = "[Audio processed. No spoken words detected (Music/Instrumental).]"
)

type Transcriber struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

func NewTranscriber(apiKey string) *Transcriber {
	return &Transcriber{apiKey: apiKey, client: &http.Client{Timeout: 60 * time.Second}, endpoint: transcriptionEndpoint}
}

// WithEndpoint overrides the transcription endpoint, used by tests to point
// at a local server instead of the real OpenAI API.
func (t *Transcriber) WithEndpoint(endpoint string) *Transcriber {
	t.endpoint = endpoint
	return t
}

// Transcribe downloads the audio at url and returns its transcript, or the
// placeholder string if the upstream reply had no text.
func (t *Transcriber) Transcribe(ctx context.Context, url, model string) (string, error) {
	if model == "" {
		model = defaultModel
	}

	audioBytes, err := t.download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audioBytes); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", model); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
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
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if wireResp.Text == "" {
		return NoSpeechPlaceholder, nil
	}
	return wireResp.Text, nil
}

func (t *Transcriber) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d fetching audio", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
