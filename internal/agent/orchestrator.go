package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeai/forge/internal/knowledge"
	"github.com/forgeai/forge/internal/provider"
)

// Retriever supplies knowledge base context. Satisfied by
// *knowledge.System.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Orchestrator owns the task queue and worker pool. Create with New, start
// with Start, stop with Shutdown. Safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	client    provider.Client
	retriever Retriever
	logger    *slog.Logger

	queue chan string
	wg    sync.WaitGroup

	mu      sync.RWMutex
	tasks   map[string]*Task
	stopped bool
}

// New creates an orchestrator. retriever may be nil to disable context
// injection regardless of cfg.ContextTopK.
func New(cfg Config, client provider.Client, retriever Retriever, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 16
	}
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		retriever: retriever,
		logger:    logger,
		queue:     make(chan string, cfg.QueueSize),
		tasks:     make(map[string]*Task),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Shutdown closes the queue.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
	o.logger.Info("orchestrator started", "workers", o.cfg.Workers, "queue_size", o.cfg.QueueSize)
}

// Submit moderates prompt and enqueues a task for it. A flagged prompt is
// recorded as rejected and returned without error; a full queue returns
// ErrQueueFull without recording anything.
func (o *Orchestrator) Submit(ctx context.Context, prompt string) (Task, error) {
	if strings.TrimSpace(prompt) == "" {
		return Task{}, fmt.Errorf("agent: prompt must not be empty")
	}

	task := &Task{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	mod, err := o.client.Moderate(ctx, prompt)
	if err != nil {
		return Task{}, fmt.Errorf("agent: moderating prompt: %w", err)
	}
	if mod.Flagged {
		task.Status = StatusRejected
		task.Error = "prompt flagged by moderation (" + mod.Source + ")"
		task.FinishedAt = time.Now().UTC()
		o.storeTask(task)
		o.logger.Warn("task rejected by moderation", "task", task.ID)
		return *task, nil
	}

	// The send happens under the mutex: Shutdown closes the queue in its
	// own critical section, so the send can never hit a closed channel.
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return Task{}, ErrStopped
	}
	select {
	case o.queue <- task.ID:
		o.tasks[task.ID] = task
	default:
		// Reject instead of blocking the caller; nothing was recorded,
		// so a retry starts clean.
		o.mu.Unlock()
		return Task{}, ErrQueueFull
	}
	o.mu.Unlock()

	o.logger.Debug("task queued", "task", task.ID)
	return *task, nil
}

// Get returns a snapshot of a task.
func (o *Orchestrator) Get(id string) (Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	task, ok := o.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return *task, nil
}

// List returns snapshots of all tasks, newest first.
func (o *Orchestrator) List() []Task {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Shutdown stops accepting tasks and waits for in-flight work to finish.
// Queued tasks still drain unless ctx was cancelled.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Drain without running: queued tasks fail fast instead of
			// hanging forever.
			o.drain(ctx.Err())
			return
		case taskID, ok := <-o.queue:
			if !ok {
				return
			}
			o.run(ctx, taskID)
		}
	}
}

// drain marks every remaining queued task failed with cause.
func (o *Orchestrator) drain(cause error) {
	for {
		select {
		case taskID, ok := <-o.queue:
			if !ok {
				return
			}
			o.setStatus(taskID, StatusFailed, "", cause.Error())
		default:
			return
		}
	}
}

// run executes one task end to end.
func (o *Orchestrator) run(ctx context.Context, taskID string) {
	ctx, span := otel.Tracer("forge/agent").Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	task, err := o.Get(taskID)
	if err != nil {
		o.logger.Error("queued task vanished", "task", taskID)
		return
	}

	o.setStatus(taskID, StatusRunning, "", "")
	o.logger.Debug("task running", "task", taskID)

	prompt, err := o.buildPrompt(ctx, task.Prompt)
	if err != nil {
		o.setStatus(taskID, StatusFailed, "", err.Error())
		return
	}

	result, err := o.client.Generate(ctx, provider.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: o.cfg.SystemPrompt,
		Model:        o.cfg.Model,
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
	})
	if err != nil {
		o.setStatus(taskID, StatusFailed, "", err.Error())
		o.logger.Warn("task failed", "task", taskID, "error", err)
		return
	}

	o.setStatus(taskID, StatusCompleted, result, "")
	o.logger.Debug("task completed", "task", taskID)
}

// buildPrompt injects retrieved knowledge base chunks ahead of the user
// prompt. Retrieval failure fails the task rather than silently degrading
// to an uninformed answer.
func (o *Orchestrator) buildPrompt(ctx context.Context, prompt string) (string, error) {
	if o.retriever == nil || o.cfg.ContextTopK < 1 {
		return prompt, nil
	}

	results, err := o.retriever.Search(ctx, prompt, knowledge.WithTopK(o.cfg.ContextTopK))
	if err != nil {
		return "", fmt.Errorf("agent: retrieving context: %w", err)
	}
	if len(results) == 0 {
		return prompt, nil
	}

	var sb strings.Builder
	sb.WriteString("Use the following context to answer.\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, r.DocumentTitle, r.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(prompt)
	return sb.String(), nil
}

func (o *Orchestrator) storeTask(task *Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks[task.ID] = task
}

// setStatus transitions a task. Terminal statuses are final: a late
// transition against a finished task is dropped.
func (o *Orchestrator) setStatus(taskID, status, result, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, ok := o.tasks[taskID]
	if !ok || terminal(task.Status) {
		return
	}

	now := time.Now().UTC()
	task.Status = status
	task.Result = result
	task.Error = errMsg
	switch {
	case status == StatusRunning:
		task.StartedAt = now
	case terminal(status):
		task.FinishedAt = now
	}
}
