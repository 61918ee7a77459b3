package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AnalysisStatus represents the lifecycle state of an analysis run.
type AnalysisStatus string

const (
	StatusPending        AnalysisStatus = "pending"
	StatusRunning        AnalysisStatus = "running"
	StatusAwaitingReview AnalysisStatus = "awaiting_review"
	StatusEscalated      AnalysisStatus = "escalated"
	StatusComplete       AnalysisStatus = "complete"
	StatusFailed         AnalysisStatus = "failed"
)

// statusRank orders the non-failed lifecycle states. Transitions must
// move strictly forward; failed is reachable from any non-terminal state.
var statusRank = map[AnalysisStatus]int{
	StatusPending:        0,
	StatusRunning:        1,
	StatusAwaitingReview: 2,
	StatusEscalated:      3,
	StatusComplete:       4,
}

// Valid reports whether s is a known analysis status.
func (s AnalysisStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether an analysis may move from one status to
// another. Forward skips are allowed (automatic mode never enters
// awaiting_review); terminal states are final.
func CanTransition(from, to AnalysisStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// AnalysisDepth selects how much source data the agents work through.
type AnalysisDepth string

const (
	DepthQuick AnalysisDepth = "quick"
	DepthFull  AnalysisDepth = "full"
)

// Valid reports whether d is a known analysis depth.
func (d AnalysisDepth) Valid() bool {
	return d == DepthQuick || d == DepthFull
}

// HITLMode controls whether findings require human review before
// the analysis can finalize.
type HITLMode string

const (
	HITLInteractive HITLMode = "interactive"
	HITLAutomatic   HITLMode = "automatic"
)

// Valid reports whether m is a known HITL mode.
func (m HITLMode) Valid() bool {
	return m == HITLInteractive || m == HITLAutomatic
}

// Analysis is one forensic analysis run for a listed company.
type Analysis struct {
	ID            string         `json:"id"`
	Ticker        string         `json:"ticker"`
	CompanyName   string         `json:"company_name,omitempty"`
	Sector        string         `json:"sector,omitempty"`
	Depth         AnalysisDepth  `json:"analysis_depth"`
	Status        AnalysisStatus `json:"status"`
	RiskScore     *float64       `json:"risk_score,omitempty"`
	FindingsCount int            `json:"findings_count"`
	HITLMode      HITLMode       `json:"hitl_mode"`
	UserID        string         `json:"user_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewAnalysis is the input for creating an analysis. Zero fields take
// the store defaults (depth=full, hitl_mode=interactive, user=default).
type NewAnalysis struct {
	Ticker      string        `json:"ticker"`
	CompanyName string        `json:"company_name,omitempty"`
	Sector      string        `json:"sector,omitempty"`
	Depth       AnalysisDepth `json:"analysis_depth,omitempty"`
	HITLMode    HITLMode      `json:"hitl_mode,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
}

var sectorCaser = cases.Title(language.English)

// NormalizeTicker uppercases and trims an exchange ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeSector title-cases a sector label so feedback pattern mining
// matches across differently-cased inputs.
func NormalizeSector(sector string) string {
	return sectorCaser.String(strings.TrimSpace(sector))
}

// ClampScore bounds a confidence or risk score to the [0,100] scale.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
