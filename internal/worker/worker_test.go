package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/pkg/models"
)

type fakeDriver struct {
	name     string
	hasCreds bool
	reply    string
}

func (f *fakeDriver) Name() string         { return f.name }
func (f *fakeDriver) HasCredentials() bool { return f.hasCreds }
func (f *fakeDriver) Invoke(ctx context.Context, req *providers.InvokeRequest) (*models.CanonicalResponse, error) {
	text := f.reply
	return &models.CanonicalResponse{
		Choices: []models.Choice{{Message: models.ResponseMessage{Role: models.RoleAssistant, Content: &text}}},
		Usage:   models.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func newTestGateway(t *testing.T) *kv.Gateway {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return kv.New(mr.Addr())
}

func TestWorkerProcessesJobAndWritesResult(t *testing.T) {
	gw := newTestGateway(t)
	chat := router.NewChatRouter("openai", false, &fakeDriver{name: "openai", hasCreds: true, reply: "hi there"})
	reg := NewRegistry()

	job := models.Job{
		ID:          NewJobID("acme"),
		TenantID:    "acme",
		Provider:    "openai",
		Messages:    []models.Message{{Role: models.RoleUser, RawString: "hi"}},
		Temperature: 0.7,
	}
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, gw.RPush(context.Background(), queueKey("acme"), string(payload)))

	spawned := reg.SpawnIfAbsent(context.Background(), "acme", gw, chat)
	require.True(t, spawned)

	var envelope models.ResultEnvelope
	require.Eventually(t, func() bool {
		v, err := gw.Get(context.Background(), resultKey(job.ID))
		if err != nil {
			return false
		}
		return json.Unmarshal([]byte(v), &envelope) == nil
	}, 2*time.Second, 20*time.Millisecond)

	require.True(t, envelope.Success)
	var reply models.ChatReply
	require.NoError(t, json.Unmarshal(envelope.Data, &reply))
	require.Equal(t, "hi there", *reply.Choices[0].Message.Content)
	require.Equal(t, "basic_query", reply.Metadata.QueryType)
	require.Equal(t, 1.0, reply.Metadata.CreditsUsed)
}

func TestSpawnIfAbsentOnlySpawnsOnce(t *testing.T) {
	gw := newTestGateway(t)
	chat := router.NewChatRouter("openai", false, &fakeDriver{name: "openai", hasCreds: true, reply: "ok"})
	reg := NewRegistry()

	first := reg.SpawnIfAbsent(context.Background(), "acme", gw, chat)
	second := reg.SpawnIfAbsent(context.Background(), "acme", gw, chat)

	require.True(t, first)
	require.False(t, second)
}

func TestWorkerExitsAfterIdleCleanup(t *testing.T) {
	gw := newTestGateway(t)
	chat := router.NewChatRouter("openai", false, &fakeDriver{name: "openai", hasCreds: true, reply: "ok"})
	reg := NewRegistry()

	reg.SpawnIfAbsent(context.Background(), "acme", gw, chat)

	require.Eventually(t, func() bool {
		_, err := gw.Get(context.Background(), lockKey("acme"))
		return err == kv.ErrNil
	}, 3*time.Second, 50*time.Millisecond)

	reg.mu.Lock()
	_, stillRegistered := reg.workers["acme"]
	reg.mu.Unlock()
	require.False(t, stillRegistered)
}
