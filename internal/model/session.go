package model

import (
	"encoding/json"
	"time"
)

// DefaultMaxIterations bounds critic-driven reinvestigation loops.
const DefaultMaxIterations = 3

// Session is the orchestrator's persisted checkpoint for one analysis:
// the current workflow step, opaque workflow state, per-agent outputs,
// and the iteration counter. The store treats the JSON blobs as opaque;
// the workflow package gives them shape.
type Session struct {
	ID             string          `json:"id"`
	AnalysisID     string          `json:"analysis_id"`
	CurrentStep    string          `json:"current_step,omitempty"`
	WorkflowState  json.RawMessage `json:"workflow_state,omitempty"`
	AgentOutputs   json.RawMessage `json:"agent_outputs,omitempty"`
	IterationCount int             `json:"iteration_count"`
	MaxIterations  int             `json:"max_iterations"`
	PausedAt       *time.Time      `json:"paused_at,omitempty"`
	ResumedAt      *time.Time      `json:"resumed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
