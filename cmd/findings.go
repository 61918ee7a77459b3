package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forensicvalue/forensic-cli/internal/memory"
	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "Inspect and validate agent findings",
}

// -- findings list --

var findingsListCmd = &cobra.Command{
	Use:   "list <analysis-id>",
	Short: "List findings for an analysis, most severe first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		agent, _ := cmd.Flags().GetString("agent")
		severity, _ := cmd.Flags().GetString("severity")
		validation, _ := cmd.Flags().GetString("validation")
		limit, _ := cmd.Flags().GetInt("limit")

		findings, err := st.ListFindings(ctx, store.FindingFilter{
			AnalysisID: args[0],
			Agent:      model.AgentName(agent),
			Severity:   model.Severity(severity),
			Validation: model.Validation(validation),
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "findings list")
		}

		if len(findings) == 0 {
			fmt.Fprintln(os.Stderr, "No findings found.")
			return nil
		}

		formatFindingsList(os.Stdout, findings)
		return nil
	},
}

// -- findings validate --

var findingsValidateCmd = &cobra.Command{
	Use:   "validate <finding-id> <approved|rejected|needs_more_info>",
	Short: "Record a human verdict on a finding",
	Long:  "Records the verdict and, unless --keep-confidence is set, recomputes the finding's adjusted confidence from feedback history.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		verdict := model.Validation(args[1])
		if !verdict.Valid() {
			return eris.Errorf("unknown validation %q", args[1])
		}

		f, err := st.GetFinding(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "findings validate")
		}

		var adjusted *float64
		keep, _ := cmd.Flags().GetBool("keep-confidence")
		if !keep {
			a, err := st.GetAnalysis(ctx, f.AnalysisID)
			if err != nil {
				return eris.Wrap(err, "findings validate")
			}
			mem := memory.New(st, cfg.Memory.ContextLimit)
			value, delta, err := mem.Adjust(ctx, f, a.Ticker, a.Sector)
			if err != nil {
				return eris.Wrap(err, "findings validate")
			}
			adjusted = &value
			if delta != 0 {
				fmt.Fprintf(os.Stdout, "confidence %.1f -> %.1f (%+.1f from feedback history)\n",
					f.Confidence, value, delta)
			}
		}

		if err := st.ValidateFinding(ctx, f.ID, verdict, adjusted); err != nil {
			return eris.Wrap(err, "findings validate")
		}

		fmt.Fprintf(os.Stdout, "finding %s marked %s\n", truncateID(f.ID), verdict)
		return nil
	},
}

func init() {
	findingsListCmd.Flags().String("agent", "", "filter by agent (forensic, management, rpt, red_flag, auditor, critic)")
	findingsListCmd.Flags().String("severity", "", "filter by severity (critical, high, medium, low)")
	findingsListCmd.Flags().String("validation", "", "filter by validation verdict")
	findingsListCmd.Flags().Int("limit", 0, "max number of findings to display")

	findingsValidateCmd.Flags().Bool("keep-confidence", false, "record the verdict without recomputing adjusted confidence")

	findingsCmd.AddCommand(findingsListCmd)
	findingsCmd.AddCommand(findingsValidateCmd)
	rootCmd.AddCommand(findingsCmd)
}

// formatFindingsList writes a tabular list of findings to w.
func formatFindingsList(out io.Writer, findings []model.Finding) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAGENT\tSEVERITY\tCONF\tADJ\tVERDICT\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t----\t---\t-------\t-----")

	for _, f := range findings {
		adj := "-"
		if f.AdjustedConfidence != nil {
			adj = fmt.Sprintf("%.1f", *f.AdjustedConfidence)
		}
		verdict := string(f.UserValidation)
		if verdict == "" {
			verdict = "-"
		}

		title := truncateText(f.Title, 48)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			truncateID(f.ID),
			f.Agent,
			f.Severity,
			f.Confidence,
			adj,
			verdict,
			title,
		)
	}
	_ = w.Flush()
}
