package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	Ticker string               `json:"ticker,omitempty"`
	Status model.AnalysisStatus `json:"status,omitempty"`
	UserID string               `json:"user_id,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// FindingFilter specifies criteria for listing findings.
type FindingFilter struct {
	AnalysisID string           `json:"analysis_id,omitempty"`
	Agent      model.AgentName  `json:"agent_name,omitempty"`
	Severity   model.Severity   `json:"severity,omitempty"`
	Validation model.Validation `json:"validation,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// FeedbackFilter specifies criteria for listing feedback history.
// ApplyToFuture filters on the reuse flag when non-nil.
type FeedbackFilter struct {
	FindingID     string             `json:"finding_id,omitempty"`
	Ticker        string             `json:"ticker,omitempty"`
	Sector        string             `json:"sector,omitempty"`
	Type          model.FeedbackType `json:"feedback_type,omitempty"`
	ApplyToFuture *bool              `json:"apply_to_future,omitempty"`
	Limit         int                `json:"limit,omitempty"`
}

// TransitionUpdate carries the optional fields an orchestrator records
// alongside a status transition.
type TransitionUpdate struct {
	RiskScore     *float64 `json:"risk_score,omitempty"`
	FindingsCount *int     `json:"findings_count,omitempty"`
}

// SessionUpdate is a partial update of a workflow session checkpoint.
// Nil fields are left untouched.
type SessionUpdate struct {
	CurrentStep    *string         `json:"current_step,omitempty"`
	WorkflowState  json.RawMessage `json:"workflow_state,omitempty"`
	AgentOutputs   json.RawMessage `json:"agent_outputs,omitempty"`
	IterationCount *int            `json:"iteration_count,omitempty"`
	PausedAt       *time.Time      `json:"paused_at,omitempty"`
	ResumedAt      *time.Time      `json:"resumed_at,omitempty"`
}

// Store defines the persistence contract for the analysis lifecycle:
// analyses, agent findings, human feedback, and workflow sessions.
type Store interface {
	// Analyses
	CreateAnalysis(ctx context.Context, in model.NewAnalysis) (*model.Analysis, error)
	GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error)
	TransitionAnalysis(ctx context.Context, analysisID string, to model.AnalysisStatus, upd TransitionUpdate) error
	DeleteAnalysis(ctx context.Context, analysisID string) error

	// Findings
	CreateFinding(ctx context.Context, in model.NewFinding) (*model.Finding, error)
	GetFinding(ctx context.Context, findingID string) (*model.Finding, error)
	ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error)
	ValidateFinding(ctx context.Context, findingID string, validation model.Validation, adjustedConfidence *float64) error

	// Feedback
	CreateFeedback(ctx context.Context, in model.NewFeedback) (*model.Feedback, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.Feedback, error)

	// Sessions
	CreateSession(ctx context.Context, analysisID string, maxIterations int) (*model.Session, error)
	GetSession(ctx context.Context, analysisID string) (*model.Session, error)
	CheckpointSession(ctx context.Context, sessionID string, upd SessionUpdate) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
