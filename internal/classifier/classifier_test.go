package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/internal/ticketstore"
	"github.com/llmgate/llmgate/pkg/models"
)

type fakeClassifierDriver struct {
	reply string
}

func (f *fakeClassifierDriver) Name() string         { return "openai" }
func (f *fakeClassifierDriver) HasCredentials() bool { return true }
func (f *fakeClassifierDriver) Invoke(ctx context.Context, req *providers.InvokeRequest) (*models.CanonicalResponse, error) {
	text := f.reply
	return &models.CanonicalResponse{
		Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: &text}}},
	}, nil
}

func TestShouldClassifyGate(t *testing.T) {
	require.True(t, ShouldClassify(&models.Job{TicketID: "t-1", Category: "LOW"}))
	require.True(t, ShouldClassify(&models.Job{TicketID: "t-1", Category: "low"}))
	require.False(t, ShouldClassify(&models.Job{TicketID: "t-1", Category: "high"}))
	require.False(t, ShouldClassify(&models.Job{TicketID: "", Category: "low"}))
}

func TestClassifyDeliversToWebhook(t *testing.T) {
	var received models.TicketClassification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	driver := &fakeClassifierDriver{reply: `{"title":"Cannot log in","category":"account","priority":"medium","reason":"user locked out"}`}
	chat := router.NewChatRouter("openai", false, driver)
	store := ticketstore.NewNoopStore()
	c := New(chat, store, srv.URL, "secret")

	job := &models.Job{
		ID:               "acme-1-abc",
		Provider:         "openai",
		TicketID:         "tk-42",
		TicketCategories: []string{"account", "billing", "bug"},
		Category:         "low",
	}

	c.Classify(context.Background(), job, "I've reset your password, please check your email.")

	require.Equal(t, "tk-42", received.TicketID)
	require.Equal(t, "account", received.Category)
	require.Equal(t, "medium", received.Priority)
}

func TestClassifyFallsBackToGeneralForUnknownCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	driver := &fakeClassifierDriver{reply: `{"title":"x","category":"not_in_list","priority":"low","reason":"r"}`}
	chat := router.NewChatRouter("openai", false, driver)
	store := ticketstore.NewNoopStore()
	c := New(chat, store, srv.URL, "secret")

	job := &models.Job{Provider: "openai", TicketID: "tk-1", TicketCategories: []string{"account"}, Category: "low"}
	result, err := c.classifyWithLLM(context.Background(), job, "reply text")
	require.NoError(t, err)
	require.Equal(t, "general", result.Category)
}
