package model

import "time"

// AgentName identifies which analysis agent produced a finding.
type AgentName string

const (
	AgentForensic   AgentName = "forensic"
	AgentManagement AgentName = "management"
	AgentRPT        AgentName = "rpt"
	AgentRedFlag    AgentName = "red_flag"
	AgentAuditor    AgentName = "auditor"
	AgentCritic     AgentName = "critic"
)

// Agents lists every known agent in pipeline order.
var Agents = []AgentName{
	AgentForensic, AgentManagement, AgentRPT,
	AgentRedFlag, AgentAuditor, AgentCritic,
}

// Valid reports whether a is a known agent.
func (a AgentName) Valid() bool {
	for _, known := range Agents {
		if a == known {
			return true
		}
	}
	return false
}

// Severity grades how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities for display, critical first. Unknown values
// sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	}
	return 5
}

// Validation is the human review outcome on a finding or feedback row.
// The empty string means not yet reviewed.
type Validation string

const (
	ValidationApproved      Validation = "approved"
	ValidationRejected      Validation = "rejected"
	ValidationNeedsMoreInfo Validation = "needs_more_info"
)

// Valid reports whether v is a known validation outcome.
func (v Validation) Valid() bool {
	switch v {
	case ValidationApproved, ValidationRejected, ValidationNeedsMoreInfo:
		return true
	}
	return false
}

// Finding is a single flagged irregularity produced by one agent for
// one analysis. Evidence is an ordered list of schemaless supporting
// items, opaque to the store.
type Finding struct {
	ID                  string           `json:"id"`
	AnalysisID          string           `json:"analysis_id"`
	Agent               AgentName        `json:"agent_name"`
	FindingType         string           `json:"finding_type"`
	Title               string           `json:"title"`
	Description         string           `json:"description,omitempty"`
	Severity            Severity         `json:"severity"`
	Confidence          float64          `json:"confidence"`
	AdjustedConfidence  *float64         `json:"adjusted_confidence,omitempty"`
	Evidence            []map[string]any `json:"evidence"`
	IndustryBenchmark   map[string]any   `json:"industry_benchmark,omitempty"`
	RequiresHumanReview bool             `json:"requires_human_review"`
	UserValidation      Validation       `json:"user_validation,omitempty"`
	Iteration           int              `json:"iteration"`
	CreatedAt           time.Time        `json:"created_at"`
}

// NewFinding is the input for attaching a finding to an analysis.
// Severity defaults to medium, confidence to 50.0, iteration to 1.
type NewFinding struct {
	AnalysisID          string           `json:"analysis_id"`
	Agent               AgentName        `json:"agent_name"`
	FindingType         string           `json:"finding_type"`
	Title               string           `json:"title"`
	Description         string           `json:"description,omitempty"`
	Severity            Severity         `json:"severity,omitempty"`
	Confidence          *float64         `json:"confidence,omitempty"`
	Evidence            []map[string]any `json:"evidence,omitempty"`
	IndustryBenchmark   map[string]any   `json:"industry_benchmark,omitempty"`
	RequiresHumanReview bool             `json:"requires_human_review,omitempty"`
	Iteration           int              `json:"iteration,omitempty"`
}
