package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

func exportFixture() (*model.Analysis, []model.Finding) {
	risk := 61.5
	adjusted := 85.0
	a := &model.Analysis{
		ID:            "a1",
		Ticker:        "INFY",
		CompanyName:   "Infosys Ltd",
		Sector:        "Information Technology",
		Status:        model.StatusComplete,
		RiskScore:     &risk,
		FindingsCount: 2,
	}
	findings := []model.Finding{
		{ID: "f1", AnalysisID: "a1", Agent: model.AgentRPT, FindingType: "circular_loans",
			Title: "Circular related-party loans", Severity: model.SeverityCritical,
			Confidence: 78.0, AdjustedConfidence: &adjusted,
			UserValidation: model.ValidationApproved, Iteration: 1},
		{ID: "f2", AnalysisID: "a1", Agent: model.AgentForensic, FindingType: "cashflow",
			Title: "CFO/EBITDA divergence", Severity: model.SeverityHigh,
			Confidence: 64.0, Iteration: 2},
	}
	return a, findings
}

func TestExportXLSX(t *testing.T) {
	a, findings := exportFixture()
	path := filepath.Join(t.TempDir(), "report.xlsx")

	require.NoError(t, exportXLSX(a, findings, path))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)

	sheet := file.Sheet["Findings"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 3) // header + 2 findings
	assert.Equal(t, "Ticker", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "rpt", sheet.Rows[1].Cells[1].Value)
	assert.Equal(t, "critical", sheet.Rows[1].Cells[3].Value)

	summary := file.Sheet["Analysis"]
	require.NotNil(t, summary)
	assert.Equal(t, "Ticker", summary.Rows[0].Cells[0].Value)
	assert.Equal(t, "INFY", summary.Rows[0].Cells[1].Value)
}

func TestExportYAML(t *testing.T) {
	a, findings := exportFixture()
	path := filepath.Join(t.TempDir(), "report.yaml")

	require.NoError(t, exportYAML(a, findings, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report yamlReport
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.Equal(t, "INFY", report.Analysis.Ticker)
	require.Len(t, report.Findings, 2)
	assert.Equal(t, model.SeverityCritical, report.Findings[0].Severity)
}
