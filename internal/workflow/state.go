package workflow

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

// Step names a stage of the analysis workflow.
type Step string

const (
	StepFetchData   Step = "fetch_data"
	StepLoadMemory  Step = "load_memory"
	StepForensic    Step = "forensic"
	StepManagement  Step = "management"
	StepRPT         Step = "rpt"
	StepMarketIntel Step = "market_intel"
	StepRedFlag     Step = "red_flag"
	StepAuditor     Step = "auditor"
	StepAggregate   Step = "aggregate"
	StepCritic      Step = "critic"
	StepHumanReview Step = "human_review"
	StepReport      Step = "report"
)

// Steps lists the workflow stages in execution order.
var Steps = []Step{
	StepFetchData, StepLoadMemory, StepForensic, StepManagement, StepRPT,
	StepMarketIntel, StepRedFlag, StepAuditor, StepAggregate, StepCritic,
	StepHumanReview, StepReport,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// Payload is the step-specific portion of a checkpoint.
type Payload interface {
	step() Step
}

// FetchDataState records document loading progress.
type FetchDataState struct {
	Ticker          string   `json:"ticker"`
	DocumentsLoaded int      `json:"documents_loaded"`
	Sources         []string `json:"sources,omitempty"`
}

// LoadMemoryState records how much past feedback was retrieved.
type LoadMemoryState struct {
	CompanyInsights  int `json:"company_insights"`
	SectorPatterns   int `json:"sector_patterns"`
	ApprovedPatterns int `json:"approved_patterns"`
	RejectedPatterns int `json:"rejected_patterns"`
}

// AgentState records one specialist agent's pass. It serves all six
// agent steps; the envelope's step tag identifies which.
type AgentState struct {
	Agent         model.AgentName `json:"agent"`
	FindingsCount int             `json:"findings_count"`
	TopSeverity   model.Severity  `json:"top_severity,omitempty"`
	Summary       string          `json:"summary,omitempty"`
}

// AggregateState records the combined result of all agent passes.
type AggregateState struct {
	TotalFindings int     `json:"total_findings"`
	RiskScore     float64 `json:"risk_score"`
}

// CriticState records the critic's verdict on an iteration.
type CriticState struct {
	Iteration int      `json:"iteration"`
	Approved  bool     `json:"approved"`
	Reasons   []string `json:"reasons,omitempty"`
}

// HumanReviewState records review progress during an interactive pause.
type HumanReviewState struct {
	PendingFindings int `json:"pending_findings"`
	Validated       int `json:"validated"`
}

// ReportState records the final report output.
type ReportState struct {
	Path      string  `json:"path,omitempty"`
	RiskScore float64 `json:"risk_score"`
}

// UnknownState preserves a payload written by a newer workflow version.
// Readers round-trip it without interpretation.
type UnknownState struct {
	Step Step            `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (FetchDataState) step() Step   { return StepFetchData }
func (LoadMemoryState) step() Step  { return StepLoadMemory }
func (AgentState) step() Step       { return "" } // tag carried by the envelope
func (AggregateState) step() Step   { return StepAggregate }
func (CriticState) step() Step      { return StepCritic }
func (HumanReviewState) step() Step { return StepHumanReview }
func (ReportState) step() Step      { return StepReport }
func (u UnknownState) step() Step   { return u.Step }

// State is the tagged envelope persisted as Session.workflow_state.
type State struct {
	Step    Step
	Payload Payload
}

type envelope struct {
	Step  Step            `json:"step"`
	State json.RawMessage `json:"state"`
}

// NewState pairs a payload with its step tag. For agent payloads the
// step must be passed explicitly; for the rest it is derived.
func NewState(step Step, payload Payload) State {
	if step == "" {
		step = payload.step()
	}
	return State{Step: step, Payload: payload}
}

func (s State) MarshalJSON() ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if u, ok := s.Payload.(UnknownState); ok {
		raw = u.Raw
	} else {
		raw, err = json.Marshal(s.Payload)
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: marshal %s state", s.Step)
		}
	}
	return json.Marshal(envelope{Step: s.Step, State: raw})
}

// UnmarshalState decodes a persisted envelope into its typed payload.
// Payloads tagged with an unrecognized step come back as UnknownState.
func UnmarshalState(data []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return State{}, eris.Wrap(err, "workflow: decode envelope")
	}
	if env.Step == "" {
		return State{}, eris.New("workflow: envelope missing step tag")
	}

	var payload Payload
	switch env.Step {
	case StepFetchData:
		payload = &FetchDataState{}
	case StepLoadMemory:
		payload = &LoadMemoryState{}
	case StepForensic, StepManagement, StepRPT, StepMarketIntel, StepRedFlag, StepAuditor:
		payload = &AgentState{}
	case StepAggregate:
		payload = &AggregateState{}
	case StepCritic:
		payload = &CriticState{}
	case StepHumanReview:
		payload = &HumanReviewState{}
	case StepReport:
		payload = &ReportState{}
	default:
		return State{Step: env.Step, Payload: UnknownState{Step: env.Step, Raw: env.State}}, nil
	}

	if len(env.State) > 0 {
		if err := json.Unmarshal(env.State, payload); err != nil {
			return State{}, eris.Wrapf(err, "workflow: decode %s state", env.Step)
		}
	}
	return State{Step: env.Step, Payload: deref(payload)}, nil
}

// deref returns the value form so callers can type-switch on concrete
// structs instead of pointers.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *FetchDataState:
		return *v
	case *LoadMemoryState:
		return *v
	case *AgentState:
		return *v
	case *AggregateState:
		return *v
	case *CriticState:
		return *v
	case *HumanReviewState:
		return *v
	case *ReportState:
		return *v
	}
	return p
}
