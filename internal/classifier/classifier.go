// Package classifier implements the optional post-response ticket
// classifier: after a successful low-priority chat reply carrying a ticket
// id, ask the LLM to classify the ticket and PUT the result to a webhook.
// It is fire-and-forget: any failure here must never affect the HTTP
// response the caller already received.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/internal/ticketstore"
	"github.com/llmgate/llmgate/pkg/models"
)

const webhookTimeout = 10 * time.Second

// Classifier routes a second LLM call and PUTs the result to a webhook.
type Classifier struct {
	chat       *router.ChatRouter
	store      ticketstore.Store
	httpClient *http.Client
	webhookURL string
	webhookKey string
}

func New(chat *router.ChatRouter, store ticketstore.Store, webhookURL, webhookKey string) *Classifier {
	return &Classifier{
		chat:       chat,
		store:      store,
		httpClient: &http.Client{Timeout: webhookTimeout},
		webhookURL: webhookURL,
		webhookKey: webhookKey,
	}
}

// ShouldClassify reports whether a completed job qualifies: it must carry a
// ticket id and its category, lower-cased, must equal "low", so the gate
// matches "low" in any casing. The category is lower-cased only for this
// comparison; the job's stored category keeps its original casing.
func ShouldClassify(job *models.Job) bool {
	return job.TicketID != "" && strings.ToLower(job.Category) == "low"
}

// Classify blocks until the LLM call and the webhook PUT finish; the chat
// handler runs it in its own goroutine so it never delays the HTTP response
// already sent.
func (c *Classifier) Classify(ctx context.Context, job *models.Job, replyText string) {
	result, err := c.classifyWithLLM(ctx, job, replyText)
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", job.TicketID).Msg("classifier: LLM classification failed")
		return
	}

	if err := c.store.SaveClassification(ctx, result); err != nil {
		log.Warn().Err(err).Str("ticket_id", job.TicketID).Msg("classifier: failed to persist classification")
	}

	if err := c.deliverWebhook(ctx, result); err != nil {
		log.Warn().Err(err).Str("ticket_id", job.TicketID).Msg("classifier: webhook delivery failed")
		return
	}
	log.Info().Str("ticket_id", job.TicketID).Str("category", result.Category).Msg("classifier: ticket classified")
}

type classifierOutput struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

func (c *Classifier) classifyWithLLM(ctx context.Context, job *models.Job, replyText string) (*models.TicketClassification, error) {
	driver, ok := c.chat.Driver(job.Provider)
	if !ok {
		return nil, fmt.Errorf("classifier: no driver for provider %q", job.Provider)
	}

	systemPrompt := buildSystemPrompt(job.TicketCategories)
	userPrompt := fmt.Sprintf("Classify this support ticket based on the assistant's reply:\n\n%s", replyText)

	req := &providers.InvokeRequest{
		Messages: []models.Message{
			{Role: models.RoleSystem, RawString: systemPrompt},
			{Role: models.RoleUser, RawString: userPrompt},
		},
		Temperature: 0,
		JSONOnly:    true,
	}

	resp, err := driver.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("classifier: empty classification reply")
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(*resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("classifier: malformed JSON reply: %w", err)
	}

	if !isAllowedCategory(out.Category, job.TicketCategories) {
		out.Reason = fmt.Sprintf("category %q not in allowed list, defaulted to general. %s", out.Category, out.Reason)
		out.Category = "general"
	}

	return &models.TicketClassification{
		TicketID: job.TicketID,
		Title:    out.Title,
		Category: out.Category,
		Priority: out.Priority,
		Reason:   out.Reason,
	}, nil
}

func buildSystemPrompt(categories []string) string {
	list := strings.Join(categories, ", ")
	return fmt.Sprintf(
		"You are a support ticket classifier. Reply with a JSON object only: "+
			`{"title": string, "category": string, "priority": string, "reason": string}. `+
			"The category must be one of: %s.", list,
	)
}

func isAllowedCategory(category string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, category) {
			return true
		}
	}
	return false
}

func (c *Classifier) deliverWebhook(ctx context.Context, result *models.TicketClassification) error {
	if c.webhookURL == "" {
		return fmt.Errorf("classifier: no webhook configured")
	}
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.webhookKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
