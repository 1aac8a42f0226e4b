// Package worker implements the per-tenant worker: a singleton coroutine
// that holds a tenant-scoped lock in the shared store, blocking-pops jobs
// off the tenant's queue, executes them via the router, and publishes
// results into short-lived result slots.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/costing"
	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/pkg/models"
)

const (
	// LockTTL must be at least MaxJobDuration with margin.
	LockTTL = 300 * time.Second
	// MaxJobDuration bounds a single provider call.
	MaxJobDuration = 180 * time.Second
	// ResultTTL is how long a result slot survives before GC.
	ResultTTL = 300 * time.Second
	// BlockTimeout bounds idle wake-up latency for cleanup.
	BlockTimeout = 1 * time.Second
)

func queueKey(tenant string) string  { return "queue:" + tenant }
func lockKey(tenant string) string   { return "lock:" + tenant }
func resultKey(jobID string) string  { return "result:" + jobID }

// Worker is the per-tenant loop. One live per tenant per process, enforced
// by Registry at admission time and authoritatively by the KV lock.
type Worker struct {
	tenant   string
	id       string
	gw       *kv.Gateway
	chat     *router.ChatRouter
	registry *Registry
}

// Registry is process-local mutable state mapping tenant to the live
// worker for that tenant. It is not authoritative for correctness — the KV
// lock is — it only avoids redundant local spawns.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

// SpawnIfAbsent inserts and starts a worker for tenant if none is currently
// registered locally, returning whether a new worker was spawned.
func (r *Registry) SpawnIfAbsent(ctx context.Context, tenant string, gw *kv.Gateway, chat *router.ChatRouter) bool {
	r.mu.Lock()
	if _, exists := r.workers[tenant]; exists {
		r.mu.Unlock()
		return false
	}
	w := &Worker{tenant: tenant, id: uuid.NewString(), gw: gw, chat: chat, registry: r}
	r.workers[tenant] = w
	r.mu.Unlock()

	go w.run(ctx)
	return true
}

func (r *Registry) remove(tenant string) {
	r.mu.Lock()
	delete(r.workers, tenant)
	r.mu.Unlock()
}

// run is the worker lifecycle: acquire, loop, and best-effort lock release
// on an unexpected crash.
func (w *Worker) run(ctx context.Context) {
	acquired, err := w.gw.SetNX(ctx, lockKey(w.tenant), w.id, LockTTL)
	if err != nil {
		log.Error().Err(err).Str("tenant", w.tenant).Msg("worker: lock acquisition failed")
		w.registry.remove(w.tenant)
		return
	}
	if !acquired {
		// Another worker, possibly on another node, already owns this tenant.
		w.registry.remove(w.tenant)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("tenant", w.tenant).Msg("worker: crashed, releasing lock")
			_ = w.gw.Del(context.Background(), lockKey(w.tenant))
			w.registry.remove(w.tenant)
		}
	}()

	for {
		payload, err := w.gw.BLPop(ctx, queueKey(w.tenant), BlockTimeout)
		if err == kv.ErrNil {
			deleted, err := w.gw.CleanupQueueAndLock(ctx, queueKey(w.tenant), lockKey(w.tenant))
			if err != nil {
				log.Error().Err(err).Str("tenant", w.tenant).Msg("worker: cleanup script failed")
				continue
			}
			if deleted {
				w.registry.remove(w.tenant)
				return
			}
			// A job was pushed concurrently; keep looping.
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("tenant", w.tenant).Msg("worker: blpop failed")
			continue
		}

		w.processJob(ctx, payload)
	}
}

// processJob decodes and executes one job, never propagating an error past
// this boundary: execution failures are written to the result slot instead.
// A payload that cannot be decoded has no known job id and is only logged.
func (w *Worker) processJob(ctx context.Context, payload string) {
	var job models.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Error().Err(err).Msg("worker: failed to decode job payload")
		return
	}

	log.Info().Str("job_id", job.ID).Str("tenant", job.TenantID).Str("provider", job.Provider).Msg("worker: processing job")

	jobCtx, cancel := context.WithTimeout(ctx, MaxJobDuration)
	defer cancel()

	reply, err := w.execute(jobCtx, &job)
	if err != nil {
		w.writeFailure(ctx, job.ID, err)
		return
	}
	w.writeSuccess(ctx, job.ID, reply)
}

func (w *Worker) execute(ctx context.Context, job *models.Job) (*models.ChatReply, error) {
	start := time.Now()

	invReq := &providers.InvokeRequest{
		Messages:    job.Messages,
		Files:       job.Files,
		Temperature: job.Temperature,
		Tools:       job.Tools,
		ToolChoice:  job.ToolChoice,
	}

	resp, usedProvider, err := w.chat.Route(ctx, job.Provider, invReq)
	if err != nil {
		return nil, err
	}

	qt := costing.DetectQueryType(job.Messages, job.Files)
	meta := models.ResponseMetadata{
		RequestID:      job.RequestID,
		Provider:       usedProvider,
		NameUser:       job.NameUser,
		HasFiles:       len(job.Files) > 0,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		QueryType:      string(qt),
		Priority:       job.Priority,
		CreditsUsed:    costing.CreditsFor(qt),
		ResponseTimeMs: time.Since(start).Milliseconds(),
		CostUSD:        costing.ChatCostUSD(usedProvider, resp.Usage),
	}

	return &models.ChatReply{
		Choices:  resp.Choices,
		Usage:    resp.Usage,
		Metadata: meta,
	}, nil
}

func (w *Worker) writeSuccess(ctx context.Context, jobID string, reply *models.ChatReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		w.writeFailure(ctx, jobID, err)
		return
	}
	env := models.ResultEnvelope{Success: true, Data: data}
	w.writeEnvelope(ctx, jobID, env)
}

func (w *Worker) writeFailure(ctx context.Context, jobID string, jobErr error) {
	log.Warn().Err(jobErr).Str("job_id", jobID).Msg("worker: job failed")
	env := models.ResultEnvelope{Success: false, Error: jobErr.Error()}
	w.writeEnvelope(ctx, jobID, env)
}

func (w *Worker) writeEnvelope(ctx context.Context, jobID string, env models.ResultEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("worker: failed to marshal result envelope")
		return
	}
	if err := w.gw.SetEX(ctx, resultKey(jobID), ResultTTL, string(payload)); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("worker: failed to write result")
	}
}

// NewJobID builds a job id in the {tenant}-{ms-epoch}-{9-char random} shape.
func NewJobID(tenant string) string {
	return fmt.Sprintf("%s-%d-%s", tenant, time.Now().UnixMilli(), randomSuffix(9))
}

func randomSuffix(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	id := uuid.NewString()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = alphabet[int(id[i%len(id)])%len(alphabet)]
	}
	return string(out)
}
