package store

import (
	"github.com/rotisserie/eris"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

// Input defaulting and write-time enum validation shared by both
// drivers. The original schema accepted free text for every enum and
// caught typos at query time; validating here makes them write errors.

func applyAnalysisDefaults(in model.NewAnalysis) (model.NewAnalysis, error) {
	in.Ticker = model.NormalizeTicker(in.Ticker)
	if in.Ticker == "" {
		return in, eris.New("store: ticker is required")
	}
	in.Sector = model.NormalizeSector(in.Sector)
	if in.Depth == "" {
		in.Depth = model.DepthFull
	}
	if !in.Depth.Valid() {
		return in, eris.Errorf("store: invalid analysis depth %q", in.Depth)
	}
	if in.HITLMode == "" {
		in.HITLMode = model.HITLInteractive
	}
	if !in.HITLMode.Valid() {
		return in, eris.Errorf("store: invalid hitl mode %q", in.HITLMode)
	}
	if in.UserID == "" {
		in.UserID = "default"
	}
	return in, nil
}

func applyFindingDefaults(in model.NewFinding) (model.NewFinding, float64, error) {
	if in.AnalysisID == "" {
		return in, 0, eris.New("store: analysis id is required")
	}
	if !in.Agent.Valid() {
		return in, 0, eris.Errorf("store: invalid agent name %q", in.Agent)
	}
	if in.FindingType == "" {
		return in, 0, eris.New("store: finding type is required")
	}
	if in.Title == "" {
		return in, 0, eris.New("store: title is required")
	}
	if in.Severity == "" {
		in.Severity = model.SeverityMedium
	}
	if !in.Severity.Valid() {
		return in, 0, eris.Errorf("store: invalid severity %q", in.Severity)
	}
	confidence := 50.0
	if in.Confidence != nil {
		confidence = model.ClampScore(*in.Confidence)
	}
	if in.Evidence == nil {
		in.Evidence = []map[string]any{}
	}
	if in.Iteration <= 0 {
		in.Iteration = 1
	}
	return in, confidence, nil
}

func applyFeedbackDefaults(in model.NewFeedback) (model.NewFeedback, error) {
	if !in.Type.Valid() {
		return in, eris.Errorf("store: invalid feedback type %q", in.Type)
	}
	if in.Content == "" {
		return in, eris.New("store: content is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return in, eris.Errorf("store: invalid feedback status %q", in.Status)
	}
	if in.UserID == "" {
		in.UserID = "default"
	}
	in.Ticker = model.NormalizeTicker(in.Ticker)
	in.Sector = model.NormalizeSector(in.Sector)
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	return in, nil
}
