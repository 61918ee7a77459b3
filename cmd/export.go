package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <analysis-id>",
	Short: "Export an analysis and its findings to a report file",
	Long:  "Writes the analysis header and its findings, most severe first, as an xlsx workbook or a yaml document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.GetAnalysis(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		findings, err := st.ListFindings(ctx, store.FindingFilter{AnalysisID: a.ID})
		if err != nil {
			return eris.Wrap(err, "export")
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("%s-findings.%s", a.Ticker, exportFormat)
		}

		switch exportFormat {
		case "xlsx":
			err = exportXLSX(a, findings, out)
		case "yaml":
			err = exportYAML(a, findings, out)
		default:
			return eris.Errorf("unsupported format %q (want xlsx or yaml)", exportFormat)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "wrote %d findings to %s\n", len(findings), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format: xlsx or yaml")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <ticker>-findings.<format>)")
	rootCmd.AddCommand(exportCmd)
}

func exportXLSX(a *model.Analysis, findings []model.Finding, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Findings")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{
		"Ticker", "Agent", "Type", "Severity", "Confidence", "Adjusted",
		"Verdict", "Iteration", "Title", "Description",
	} {
		header.AddCell().Value = col
	}

	for _, f := range findings {
		row := sheet.AddRow()
		row.AddCell().Value = a.Ticker
		row.AddCell().Value = string(f.Agent)
		row.AddCell().Value = f.FindingType
		row.AddCell().Value = string(f.Severity)
		row.AddCell().SetFloat(f.Confidence)
		if f.AdjustedConfidence != nil {
			row.AddCell().SetFloat(*f.AdjustedConfidence)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = string(f.UserValidation)
		row.AddCell().SetInt(f.Iteration)
		row.AddCell().Value = f.Title
		row.AddCell().Value = f.Description
	}

	summary, err := file.AddSheet("Analysis")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addSummaryRow := func(k, v string) {
		row := summary.AddRow()
		row.AddCell().Value = k
		row.AddCell().Value = v
	}
	addSummaryRow("Ticker", a.Ticker)
	addSummaryRow("Company", a.CompanyName)
	addSummaryRow("Sector", a.Sector)
	addSummaryRow("Status", string(a.Status))
	if a.RiskScore != nil {
		addSummaryRow("Risk score", fmt.Sprintf("%.1f", *a.RiskScore))
	}
	addSummaryRow("Findings", fmt.Sprintf("%d", len(findings)))
	addSummaryRow("Created", a.CreatedAt.Format("2006-01-02 15:04"))

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// yamlReport is the yaml export shape: analysis header plus findings.
type yamlReport struct {
	Analysis *model.Analysis `yaml:"analysis"`
	Findings []model.Finding `yaml:"findings"`
}

func exportYAML(a *model.Analysis, findings []model.Finding, path string) error {
	data, err := yaml.Marshal(yamlReport{Analysis: a, Findings: findings})
	if err != nil {
		return eris.Wrap(err, "export: marshal yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
