package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Inspect and manage analysis runs",
	Long:  "Commands for listing, viewing, transitioning, and deleting analysis runs.",
}

// -- analyses list --

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ticker, _ := cmd.Flags().GetString("ticker")
		status, _ := cmd.Flags().GetString("status")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		analyses, err := st.ListAnalyses(ctx, store.AnalysisFilter{
			Ticker: ticker,
			Status: model.AnalysisStatus(status),
			UserID: user,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "analyses list")
		}

		if len(analyses) == 0 {
			fmt.Fprintln(os.Stderr, "No analyses found.")
			return nil
		}

		formatAnalysesList(os.Stdout, analyses)
		return nil
	},
}

// -- analyses show --

var analysesShowCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Show full details of an analysis",
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
			return eris.Wrap(err, "analyses show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

// -- analyses status --

var analysesStatusCmd = &cobra.Command{
	Use:   "status <analysis-id> <new-status>",
	Short: "Transition an analysis to a new lifecycle status",
	Long:  "Moves an analysis forward through pending, running, awaiting_review, escalated, complete. failed is reachable from any non-terminal status; backward moves are rejected.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		to := model.AnalysisStatus(args[1])
		if !to.Valid() {
			return eris.Errorf("unknown status %q", args[1])
		}

		upd := store.TransitionUpdate{}
		if cmd.Flags().Changed("risk-score") {
			score, _ := cmd.Flags().GetFloat64("risk-score")
			upd.RiskScore = &score
		}
		if cmd.Flags().Changed("findings-count") {
			n, _ := cmd.Flags().GetInt("findings-count")
			upd.FindingsCount = &n
		}

		if err := st.TransitionAnalysis(ctx, args[0], to, upd); err != nil {
			return eris.Wrap(err, "analyses status")
		}

		fmt.Fprintf(os.Stdout, "analysis %s -> %s\n", truncateID(args[0]), to)
		return nil
	},
}

// -- analyses delete --

var analysesDeleteCmd = &cobra.Command{
	Use:   "delete <analysis-id>",
	Short: "Delete an analysis and its findings and sessions",
	Long:  "Findings and sessions are removed with the analysis. Feedback rows survive with their references cleared.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteAnalysis(ctx, args[0]); err != nil {
			return eris.Wrap(err, "analyses delete")
		}

		fmt.Fprintf(os.Stdout, "deleted analysis %s\n", truncateID(args[0]))
		return nil
	},
}

func init() {
	analysesListCmd.Flags().String("ticker", "", "filter by company ticker")
	analysesListCmd.Flags().String("status", "", "filter by lifecycle status (pending, running, awaiting_review, escalated, complete, failed)")
	analysesListCmd.Flags().String("user", "", "filter by requesting user")
	analysesListCmd.Flags().Int("limit", 50, "max number of analyses to display")

	analysesStatusCmd.Flags().Float64("risk-score", 0, "aggregate risk score to record with the transition")
	analysesStatusCmd.Flags().Int("findings-count", 0, "findings count to record with the transition")

	analysesCmd.AddCommand(analysesListCmd)
	analysesCmd.AddCommand(analysesShowCmd)
	analysesCmd.AddCommand(analysesStatusCmd)
	analysesCmd.AddCommand(analysesDeleteCmd)
	rootCmd.AddCommand(analysesCmd)
}

// formatAnalysesList writes a tabular list of analyses to w.
func formatAnalysesList(out io.Writer, analyses []model.Analysis) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTICKER\tSECTOR\tSTATUS\tRISK\tFINDINGS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t------\t----\t--------\t-------")

	for _, a := range analyses {
		risk := "-"
		if a.RiskScore != nil {
			risk = fmt.Sprintf("%.1f", *a.RiskScore)
		}

		sector := truncateText(a.Sector, 20)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(a.ID),
			a.Ticker,
			sector,
			a.Status,
			risk,
			a.FindingsCount,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateText fits s into at most n bytes for table display, adding an
// ellipsis when shortened and never splitting a multi-byte rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
