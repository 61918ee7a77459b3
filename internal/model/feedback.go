package model

import "time"

// FeedbackType classifies a human annotation.
type FeedbackType string

const (
	FeedbackCorrection         FeedbackType = "correction"
	FeedbackPattern            FeedbackType = "pattern"
	FeedbackValidation         FeedbackType = "validation"
	FeedbackPriorityAdjustment FeedbackType = "priority_adjustment"
)

// Valid reports whether t is a known feedback type.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackCorrection, FeedbackPattern, FeedbackValidation, FeedbackPriorityAdjustment:
		return true
	}
	return false
}

// Feedback is a human annotation on a finding and/or analysis. Both
// references are optional and degrade to nil when the referent is
// deleted; the denormalized context columns (ticker, sector, agent,
// finding type) keep the row useful for pattern mining regardless.
// Feedback rows are immutable once written.
type Feedback struct {
	ID                   string         `json:"id"`
	FindingID            *string        `json:"finding_id,omitempty"`
	AnalysisID           *string        `json:"analysis_id,omitempty"`
	UserID               string         `json:"user_id"`
	Type                 FeedbackType   `json:"feedback_type"`
	Ticker               string         `json:"company_ticker,omitempty"`
	Sector               string         `json:"sector,omitempty"`
	AgentName            string         `json:"agent_name,omitempty"`
	FindingType          string         `json:"finding_type,omitempty"`
	Status               Validation     `json:"status,omitempty"`
	Content              string         `json:"content"`
	Reasoning            string         `json:"reasoning,omitempty"`
	ConfidenceAdjustment float64        `json:"confidence_adjustment"`
	ApplyToFuture        bool           `json:"apply_to_future"`
	Metadata             map[string]any `json:"metadata"`
	CreatedAt            time.Time      `json:"created_at"`
}

// NewFeedback is the input for recording feedback.
type NewFeedback struct {
	FindingID            *string        `json:"finding_id,omitempty"`
	AnalysisID           *string        `json:"analysis_id,omitempty"`
	UserID               string         `json:"user_id,omitempty"`
	Type                 FeedbackType   `json:"feedback_type"`
	Ticker               string         `json:"company_ticker,omitempty"`
	Sector               string         `json:"sector,omitempty"`
	AgentName            string         `json:"agent_name,omitempty"`
	FindingType          string         `json:"finding_type,omitempty"`
	Status               Validation     `json:"status,omitempty"`
	Content              string         `json:"content"`
	Reasoning            string         `json:"reasoning,omitempty"`
	ConfidenceAdjustment float64        `json:"confidence_adjustment,omitempty"`
	ApplyToFuture        bool           `json:"apply_to_future,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}
