package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	apimw "github.com/llmgate/llmgate/internal/api/middleware"
	"github.com/llmgate/llmgate/internal/audio"
	"github.com/llmgate/llmgate/internal/classifier"
	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/internal/ocr"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/internal/ticketstore"
	"github.com/llmgate/llmgate/internal/worker"
	"github.com/llmgate/llmgate/pkg/models"
)

type stubDriver struct {
	name  string
	reply string
}

func (s *stubDriver) Name() string         { return s.name }
func (s *stubDriver) HasCredentials() bool { return true }
func (s *stubDriver) Invoke(ctx context.Context, req *providers.InvokeRequest) (*models.CanonicalResponse, error) {
	text := s.reply
	return &models.CanonicalResponse{
		Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: &text}}},
		Usage:   models.Usage{PromptTokens: 3, CompletionTokens: 2},
	}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *kv.Gateway) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	gw := kv.New(mr.Addr())
	driver := &stubDriver{name: "openai", reply: "hello from openai"}
	chatRouter := router.NewChatRouter("openai", false, driver)
	embedRouter := router.NewEmbeddingRouter("openai")

	h := &Handlers{
		Gateway:         gw,
		ChatRouter:      chatRouter,
		EmbeddingRouter: embedRouter,
		Registry:        worker.NewRegistry(),
		Classifier:      classifier.New(chatRouter, ticketstore.NewNoopStore(), "", ""),
		Transcriber:     audio.NewTranscriber(""),
		Recognizer:      ocr.NewRecognizer(""),
	}

	auth := apimw.NewServiceKeyAuth("")
	return NewRouter(h, auth, "test"), gw
}

func TestChatHandlerBasicQuery(t *testing.T) {
	handler, _ := newTestRouter(t)

	body := `{"messages":[{"role":"user","content":"hi"}],"organization_id":"acme"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var reply models.ChatReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, "hello from openai", *reply.Choices[0].Message.Content)
	require.Equal(t, "basic_query", reply.Metadata.QueryType)
	require.Equal(t, 1.0, reply.Metadata.CreditsUsed)
}

func TestChatHandlerMissingMessagesReturns400(t *testing.T) {
	handler, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"organization_id":"acme"}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandlerImageAnalysisCredits(t *testing.T) {
	handler, _ := newTestRouter(t)

	body := `{"messages":[{"role":"user","content":[{"type":"text","text":"what is this?"},{"type":"image_url","image_url":{"url":"https://host/x.jpg"}}]}],"organization_id":"acme"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var reply models.ChatReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, "image_analysis", reply.Metadata.QueryType)
	require.Equal(t, 4.0, reply.Metadata.CreditsUsed)
}

func TestAuthMiddlewareRejectsWithoutKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	gw := kv.New(mr.Addr())
	driver := &stubDriver{name: "openai", reply: "hi"}
	chatRouter := router.NewChatRouter("openai", false, driver)
	h := &Handlers{
		Gateway:         gw,
		ChatRouter:      chatRouter,
		EmbeddingRouter: router.NewEmbeddingRouter("openai"),
		Registry:        worker.NewRegistry(),
		Classifier:      classifier.New(chatRouter, ticketstore.NewNoopStore(), "", ""),
		Transcriber:     audio.NewTranscriber(""),
		Recognizer:      ocr.NewRecognizer(""),
	}
	auth := apimw.NewServiceKeyAuth("super-secret")
	handler := NewRouter(h, auth, "test")

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`))
	req2.Header.Set("x-service-key", "super-secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestTestEndpointAlwaysPublic(t *testing.T) {
	handler, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
