package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pixeldock/saver-pipeline/internal/dbosruntime"
	"github.com/pixeldock/saver-pipeline/internal/storage"
	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the save-job runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of concurrent workers
	ContentAPIURL      string // URL of the content API server
	ApplicationVersion string // Optional: override binary hash for version matching
}

// Runner provides a high-level API for running save/export jobs via DBOS
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New creates and initializes a save-job runner with DBOS integration
func New(cfg Config) (*Runner, error) {
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	// Storage adapters against the remote content API
	documents := storage.NewHTTPDocumentReader(cfg.ContentAPIURL)
	exports := storage.NewHTTPExportWriter(cfg.ContentAPIURL)

	saveWorkflow := workflows.NewSaveExportWorkflow(documents, exports)
	workflowRunner.Register(pipeline.JobSaveExport, saveWorkflow)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// RunSaveExport enqueues a save/export job for a stored document
func (r *Runner) RunSaveExport(ctx context.Context, contentID, primaryName string, copy *pipeline.CopySpec) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.SaveRequest{
		ContentID:   contentID,
		Job:         pipeline.JobSaveExport,
		PrimaryName: primaryName,
		Copy:        copy,
		Versions: map[string]int{
			pipeline.DerivedTypePrimarySave: 1,
		},
	})
}

// Shutdown gracefully shuts down the runner
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
