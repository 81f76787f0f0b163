package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	simpleworkflow "github.com/tendant/simple-workflow"

	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// SaveExportExecutor implements simpleworkflow.WorkflowExecutor so the
// save/export workflow can run under a simple-workflow host.
type SaveExportExecutor struct {
	documents workflows.DocumentReader
	exports   workflows.ExportWriter
}

// NewSaveExportExecutor creates a new save/export executor
func NewSaveExportExecutor(
	documents workflows.DocumentReader,
	exports workflows.ExportWriter,
) *SaveExportExecutor {
	return &SaveExportExecutor{
		documents: documents,
		exports:   exports,
	}
}

// Execute implements simpleworkflow.WorkflowExecutor
func (e *SaveExportExecutor) Execute(ctx context.Context, run *simpleworkflow.WorkflowRun) (interface{}, error) {
	// Parse payload
	var params struct {
		ContentID   string             `json:"content_id"`
		PrimaryName string             `json:"primary_name"`
		Copy        *pipeline.CopySpec `json:"copy,omitempty"`
	}
	if err := json.Unmarshal(run.Payload, &params); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	runID := uuid.New().String()
	log.Printf("[%s] Executing save/export workflow for content_id=%s primary=%s", runID, params.ContentID, params.PrimaryName)

	saveWorkflow := workflows.NewSaveExportWorkflow(e.documents, e.exports)

	request := pipeline.SaveRequest{
		ContentID:   params.ContentID,
		Job:         pipeline.JobSaveExport,
		PrimaryName: params.PrimaryName,
		Copy:        params.Copy,
		Versions: map[string]int{
			pipeline.DerivedTypePrimarySave: 1,
		},
	}

	wctx := &workflows.WorkflowContext{
		Ctx:     ctx,
		Request: request,
		RunID:   runID,
	}

	result, err := saveWorkflow.Execute(wctx)
	if err != nil {
		return nil, fmt.Errorf("save/export workflow failed: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("save/export workflow returned failure: %v", result.Error)
	}

	log.Printf("[%s] Save/export workflow completed successfully", runID)

	return map[string]interface{}{
		"run_id":     runID,
		"content_id": params.ContentID,
		"outputs":    result.Outputs,
	}, nil
}
