// Package api implements the HTTP front-end: chat admission and the
// wait-for-result coupling, embeddings, and the audio/OCR auxiliary
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/audio"
	"github.com/llmgate/llmgate/internal/classifier"
	"github.com/llmgate/llmgate/internal/costing"
	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/internal/ocr"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/internal/worker"
	"github.com/llmgate/llmgate/pkg/models"
)

const defaultTenant = "default_org"

// Handlers holds everything the HTTP surface needs to admit jobs and
// answer synchronous requests.
type Handlers struct {
	Gateway         *kv.Gateway
	ChatRouter      *router.ChatRouter
	EmbeddingRouter *router.EmbeddingRouter
	Registry        *worker.Registry
	Classifier      *classifier.Classifier
	Transcriber     *audio.Transcriber
	Recognizer      *ocr.Recognizer
}

type chatRequestBody struct {
	Messages         []models.Message `json:"messages"`
	Files            []models.FileDescriptor `json:"files,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	Provider         string           `json:"provider,omitempty"`
	OrganizationID   string           `json:"organization_id,omitempty"`
	Category         string           `json:"category,omitempty"`
	NameUser         string           `json:"nameUser,omitempty"`
	TicketID         string           `json:"ticket_id,omitempty"`
	TicketCategories []string         `json:"ticket_categories,omitempty"`
	Tools            []models.ToolSchema `json:"tools,omitempty"`
	ToolChoice       interface{}      `json:"tool_choice,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Chat handles POST /chat: enqueues a job, ensures a worker is running for
// the tenant, and waits for the result before replying.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Messages == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messages is required and must be an array"})
		return
	}

	tenant := body.OrganizationID
	if tenant == "" {
		tenant = defaultTenant
	}

	temperature := 1.0
	if body.Temperature != nil {
		temperature = *body.Temperature
	}

	provider := h.ChatRouter.SelectProvider(body.Provider)
	jobID := worker.NewJobID(tenant)

	job := models.Job{
		ID:               jobID,
		RequestID:        jobID,
		TenantID:         tenant,
		Provider:         provider,
		Messages:         body.Messages,
		Files:            body.Files,
		Temperature:      temperature,
		Tools:            body.Tools,
		ToolChoice:       body.ToolChoice,
		TicketID:         body.TicketID,
		TicketCategories: body.TicketCategories,
		Category:         body.Category,
		Priority:         body.Category,
		NameUser:         body.NameUser,
		StartedAtMs:      time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	if err := h.Gateway.RPush(ctx, "queue:"+tenant, string(payload)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.Registry.SpawnIfAbsent(context.Background(), tenant, h.Gateway, h.ChatRouter)

	waitCtx, cancel := withWaitDeadline(ctx)
	defer cancel()

	env, err := waitForResult(waitCtx, h.Gateway, jobID)
	if err != nil {
		if err == ErrResultTimeout {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Timeout"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if !env.Success {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": env.Error})
		return
	}

	var reply models.ChatReply
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, reply)

	if classifier.ShouldClassify(&job) && len(reply.Choices) > 0 && reply.Choices[0].Message.Content != nil {
		replyText := *reply.Choices[0].Message.Content
		go h.Classifier.Classify(context.Background(), &job, replyText)
	}
}

type embeddingsRequestBody struct {
	Texts          []string `json:"texts,omitempty"`
	Input          []string `json:"input,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
}

// Embeddings handles POST /embeddings synchronously; there is no queueing.
func (h *Handlers) Embeddings(w http.ResponseWriter, r *http.Request) {
	var body embeddingsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	texts := body.Texts
	if len(texts) == 0 {
		texts = body.Input
	}
	if len(texts) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "texts or input is required"})
		return
	}

	provider := h.EmbeddingRouter.SelectProvider(body.Provider)
	result, err := h.EmbeddingRouter.Embed(r.Context(), provider, texts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	data := make([]map[string]interface{}, len(result.Embeddings))
	for i, e := range result.Embeddings {
		data[i] = map[string]interface{}{"object": "embedding", "embedding": e, "index": i}
	}

	totalTokens := result.Usage.PromptTokens
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  result.Model,
		"usage": map[string]int{
			"prompt_tokens": result.Usage.PromptTokens,
			"total_tokens":  totalTokens,
		},
		"metadata": map[string]interface{}{
			"provider":     provider,
			"credits_used": costing.EmbeddingCredits * float64(len(texts)),
			"cost_usd":     costing.EmbeddingCostUSD(provider, totalTokens),
		},
	})
}

type audioRequestBody struct {
	URL   string `json:"url"`
	Model string `json:"model,omitempty"`
}

// Audio handles POST /audio. Errors still respond 200 per the save-signal
// convention the front end relies on.
func (h *Handlers) Audio(w http.ResponseWriter, r *http.Request) {
	var body audioRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"output": map[string]string{"result": "[Error processing audio: invalid request body]"}})
		return
	}

	text, err := h.Transcriber.Transcribe(r.Context(), body.URL, body.Model)
	if err != nil {
		log.Warn().Err(err).Msg("audio: transcription failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{"output": map[string]string{"result": "[Error processing audio: " + err.Error() + "]"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"output": map[string]string{"result": text}})
}

type ocrRequestBody struct {
	ImageURL string `json:"image_url"`
}

// ImageOCR handles POST /image/ocr. Errors still respond 200 per the
// save-signal convention.
func (h *Handlers) ImageOCR(w http.ResponseWriter, r *http.Request) {
	var body ocrRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"content": "Error processing image: invalid request body"})
		return
	}

	text, err := h.Recognizer.Recognize(r.Context(), body.ImageURL)
	if err != nil {
		log.Warn().Err(err).Msg("ocr: recognition failed")
		writeJSON(w, http.StatusOK, map[string]string{"content": "Error processing image: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": text})
}

// Test handles GET /test, the health probe.
func (h *Handlers) Test(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
