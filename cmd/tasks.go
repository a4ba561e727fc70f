package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgeai/forge/internal/agent"
)

// taskPollInterval paces status polling while waiting for the pool.
const taskPollInterval = 100 * time.Millisecond

// runTasks submits each argument as a prompt to the agent worker pool and
// waits for all of them to finish.
func runTasks(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: forge tasks <prompt> [prompt ...]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	orch := a.newOrchestrator()
	orch.Start(ctx)
	defer orch.Shutdown()

	ids := make([]string, 0, len(args))
	for _, prompt := range args {
		task, err := orch.Submit(ctx, prompt)
		if errors.Is(err, agent.ErrQueueFull) {
			fmt.Printf("queue full, skipping: %q\n", prompt)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s: %q\n", task.ID, prompt)
		ids = append(ids, task.ID)
	}

	for _, id := range ids {
		task, err := waitForTask(ctx, orch, id)
		if err != nil {
			return err
		}
		fmt.Printf("\n[%s] %s\n", task.Status, task.ID)
		switch task.Status {
		case agent.StatusCompleted:
			fmt.Println(task.Result)
		default:
			fmt.Println(task.Error)
		}
	}
	return nil
}

// waitForTask polls until the task reaches a terminal status or ctx ends.
func waitForTask(ctx context.Context, orch *agent.Orchestrator, id string) (agent.Task, error) {
	ticker := time.NewTicker(taskPollInterval)
	defer ticker.Stop()

	for {
		task, err := orch.Get(id)
		if err != nil {
			return agent.Task{}, err
		}
		switch task.Status {
		case agent.StatusCompleted, agent.StatusFailed, agent.StatusRejected:
			return task, nil
		}

		select {
		case <-ctx.Done():
			return agent.Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
