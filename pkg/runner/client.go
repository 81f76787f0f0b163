package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pixeldock/saver-pipeline/internal/dbosruntime"
	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// Client provides a client-only API for enqueueing save jobs without
// executing them. Workers must be running separately to pick them up.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient creates a client that can enqueue save jobs but doesn't execute them
func NewClient(cfg Config) (*Client, error) {
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: cfg.DatabaseURL,
		AppName:     cfg.AppName,
		QueueName:   cfg.QueueName,
		Concurrency: 0, // Client mode: don't process workflows
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	// Runner for enqueueing only, no workflow registration
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Client{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// RunSaveExport enqueues a save/export job for workers to execute
func (c *Client) RunSaveExport(ctx context.Context, contentID, primaryName string, copy *pipeline.CopySpec) (string, error) {
	return c.runner.RunAsync(ctx, pipeline.SaveRequest{
		ContentID:   contentID,
		Job:         pipeline.JobSaveExport,
		PrimaryName: primaryName,
		Copy:        copy,
		Versions: map[string]int{
			pipeline.DerivedTypePrimarySave: 1,
		},
	})
}

// Shutdown gracefully shuts down the client
func (c *Client) Shutdown(timeoutSeconds int) {
	if c.runtime != nil {
		c.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
