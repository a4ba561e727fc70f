// Package agent runs generation tasks asynchronously over a bounded worker
// pool. Each task is moderated at submission, enriched with retrieved
// knowledge base context, then sent to the model provider.
package agent

import (
	"errors"
	"time"
)

// Task statuses. pending and running are transient; the rest are terminal
// and never overwritten.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

var (
	// ErrQueueFull is returned by Submit when the task queue is at
	// capacity. Callers decide whether to retry; nothing blocks.
	ErrQueueFull = errors.New("agent: task queue full")
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = errors.New("agent: task not found")
	// ErrStopped is returned by Submit after Shutdown.
	ErrStopped = errors.New("agent: orchestrator stopped")
)

// Config sizes the orchestrator.
type Config struct {
	// Workers is the number of concurrent task runners.
	Workers int
	// QueueSize bounds how many tasks may wait. A full queue rejects
	// submissions with ErrQueueFull.
	QueueSize int
	// ContextTopK is how many knowledge chunks are injected per task.
	// Zero disables retrieval.
	ContextTopK int
	// SystemPrompt is prepended to every generation request.
	SystemPrompt string
	// Model overrides the provider's default generation model when set.
	Model string
	// Temperature and MaxTokens are forwarded to the provider.
	Temperature float32
	MaxTokens   int
}

// Task is one unit of asynchronous work.
type Task struct {
	ID         string
	Prompt     string
	Status     string
	Result     string
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// terminal reports whether a status must never change again.
func terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}
