package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and review human feedback",
	Long:  "Feedback teaches future analyses: corrections, reusable patterns, validations, and priority adjustments. Rows flagged --apply-to-future feed confidence adjustment.",
}

// -- feedback add --

var feedbackAddCmd = &cobra.Command{
	Use:   "add <type> <content>",
	Short: "Record one feedback entry",
	Long:  "Type is one of correction, pattern, validation, priority_adjustment. References to a finding or analysis are optional; sector- or ticker-level feedback needs neither.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		in := model.NewFeedback{
			Type:    model.FeedbackType(args[0]),
			Content: args[1],
		}
		if v, _ := cmd.Flags().GetString("finding"); v != "" {
			in.FindingID = &v
		}
		if v, _ := cmd.Flags().GetString("analysis"); v != "" {
			in.AnalysisID = &v
		}
		in.UserID, _ = cmd.Flags().GetString("user")
		in.Ticker, _ = cmd.Flags().GetString("ticker")
		in.Sector, _ = cmd.Flags().GetString("sector")
		agent, _ := cmd.Flags().GetString("agent")
		in.AgentName = agent
		in.FindingType, _ = cmd.Flags().GetString("finding-type")
		in.Reasoning, _ = cmd.Flags().GetString("reasoning")
		in.ConfidenceAdjustment, _ = cmd.Flags().GetFloat64("adjustment")
		in.ApplyToFuture, _ = cmd.Flags().GetBool("apply-to-future")
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			in.Status = model.Validation(v)
		}

		fb, err := st.CreateFeedback(ctx, in)
		if err != nil {
			return eris.Wrap(err, "feedback add")
		}

		fmt.Fprintf(os.Stdout, "recorded feedback %s (%s)\n", truncateID(fb.ID), fb.Type)
		return nil
	},
}

// -- feedback history --

var feedbackHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past feedback, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.FeedbackFilter{}
		filter.FindingID, _ = cmd.Flags().GetString("finding")
		filter.Ticker, _ = cmd.Flags().GetString("ticker")
		filter.Sector, _ = cmd.Flags().GetString("sector")
		if v, _ := cmd.Flags().GetString("type"); v != "" {
			filter.Type = model.FeedbackType(v)
		}
		if cmd.Flags().Changed("reusable") {
			reusable, _ := cmd.Flags().GetBool("reusable")
			filter.ApplyToFuture = &reusable
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		rows, err := st.ListFeedback(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "feedback history")
		}

		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No feedback found.")
			return nil
		}

		formatFeedbackList(os.Stdout, rows)
		return nil
	},
}

// -- feedback import --

var feedbackImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Bulk-load historical feedback from a CSV export",
	Long:  "Expects a header row. Columns: feedback_type, content, company_ticker, sector, agent_name, finding_type, status, reasoning, confidence_adjustment, apply_to_future. On Postgres the rows go through the COPY protocol; on SQLite they are inserted one by one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "feedback import: open file")
		}
		defer f.Close() //nolint:errcheck

		entries, err := parseFeedbackCSV(f)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No feedback rows in file.")
			return nil
		}

		n, err := importFeedback(ctx, st, entries)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "imported %d feedback rows\n", n)
		return nil
	},
}

func init() {
	feedbackAddCmd.Flags().String("finding", "", "finding id this feedback refers to")
	feedbackAddCmd.Flags().String("analysis", "", "analysis id this feedback refers to")
	feedbackAddCmd.Flags().String("user", "", "user recording the feedback")
	feedbackAddCmd.Flags().String("ticker", "", "company ticker context")
	feedbackAddCmd.Flags().String("sector", "", "sector context")
	feedbackAddCmd.Flags().String("agent", "", "agent the feedback concerns")
	feedbackAddCmd.Flags().String("finding-type", "", "finding type the feedback concerns")
	feedbackAddCmd.Flags().String("status", "", "validation verdict this feedback records")
	feedbackAddCmd.Flags().String("reasoning", "", "why the feedback was given")
	feedbackAddCmd.Flags().Float64("adjustment", 0, "suggested confidence adjustment in points")
	feedbackAddCmd.Flags().Bool("apply-to-future", false, "reuse this feedback in future analyses")

	feedbackHistoryCmd.Flags().String("finding", "", "filter by finding id")
	feedbackHistoryCmd.Flags().String("ticker", "", "filter by company ticker")
	feedbackHistoryCmd.Flags().String("sector", "", "filter by sector")
	feedbackHistoryCmd.Flags().String("type", "", "filter by feedback type")
	feedbackHistoryCmd.Flags().Bool("reusable", false, "filter by the apply-to-future flag")
	feedbackHistoryCmd.Flags().Int("limit", 50, "max number of rows to display")

	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackHistoryCmd)
	feedbackCmd.AddCommand(feedbackImportCmd)
	rootCmd.AddCommand(feedbackCmd)
}

var feedbackCSVHeader = []string{
	"feedback_type", "content", "company_ticker", "sector", "agent_name",
	"finding_type", "status", "reasoning", "confidence_adjustment", "apply_to_future",
}

// parseFeedbackCSV reads a feedback export. The header row is required
// and must match feedbackCSVHeader exactly.
func parseFeedbackCSV(r io.Reader) ([]model.NewFeedback, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "feedback import: read header")
	}
	if len(header) != len(feedbackCSVHeader) {
		return nil, eris.Errorf("feedback import: expected %d columns, got %d", len(feedbackCSVHeader), len(header))
	}
	for i, col := range feedbackCSVHeader {
		if header[i] != col {
			return nil, eris.Errorf("feedback import: column %d is %q, want %q", i+1, header[i], col)
		}
	}

	var entries []model.NewFeedback
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "feedback import: line %d", line)
		}

		adjustment := 0.0
		if record[8] != "" {
			adjustment, err = strconv.ParseFloat(record[8], 64)
			if err != nil {
				return nil, eris.Wrapf(err, "feedback import: line %d: confidence_adjustment", line)
			}
		}
		applyToFuture := false
		if record[9] != "" {
			applyToFuture, err = strconv.ParseBool(record[9])
			if err != nil {
				return nil, eris.Wrapf(err, "feedback import: line %d: apply_to_future", line)
			}
		}

		entries = append(entries, model.NewFeedback{
			Type:                 model.FeedbackType(record[0]),
			Content:              record[1],
			Ticker:               record[2],
			Sector:               record[3],
			AgentName:            record[4],
			FindingType:          record[5],
			Status:               model.Validation(record[6]),
			Reasoning:            record[7],
			ConfidenceAdjustment: adjustment,
			ApplyToFuture:        applyToFuture,
		})
	}
	return entries, nil
}

// importFeedback loads entries through the fastest path the driver
// offers: COPY on Postgres, per-row inserts elsewhere. Both paths run
// each row through the store's feedback validation.
func importFeedback(ctx context.Context, st store.Store, entries []model.NewFeedback) (int64, error) {
	if pg, ok := st.(*store.PostgresStore); ok {
		n, err := pg.BulkInsertFeedback(ctx, entries)
		if err != nil {
			return 0, eris.Wrap(err, "feedback import")
		}
		zap.L().Info("bulk feedback import complete", zap.Int64("rows", n))
		return n, nil
	}

	for i, in := range entries {
		if _, err := st.CreateFeedback(ctx, in); err != nil {
			return int64(i), eris.Wrapf(err, "feedback import: row %d", i+1)
		}
	}
	return int64(len(entries)), nil
}

// formatFeedbackList writes a tabular feedback history to w.
func formatFeedbackList(out io.Writer, rows []model.Feedback) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tTICKER\tSECTOR\tADJ\tREUSE\tCONTENT")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t---\t-----\t-------")

	for _, fb := range rows {
		content := truncateText(fb.Content, 50)
		reuse := ""
		if fb.ApplyToFuture {
			reuse = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+.1f\t%s\t%s\n",
			truncateID(fb.ID),
			fb.Type,
			fb.Ticker,
			fb.Sector,
			fb.ConfidenceAdjustment,
			reuse,
			content,
		)
	}
	_ = w.Flush()
}
