package memory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

// Memory mines past human feedback for reuse in new analyses. Retrieval
// is purely relational over the denormalized feedback columns; rows are
// considered only when they were flagged apply_to_future.
type Memory struct {
	store store.Store
	limit int
}

// New creates a Memory over the given store. Limit caps rows fetched
// per retrieval category; zero means a default of 10.
func New(st store.Store, limit int) *Memory {
	if limit <= 0 {
		limit = 10
	}
	return &Memory{store: st, limit: limit}
}

// Context is the feedback relevant to one upcoming analysis.
type Context struct {
	CompanySpecific  []model.Feedback `json:"company_specific_insights"`
	SectorPatterns   []model.Feedback `json:"sector_patterns"`
	ApprovedPatterns []model.Feedback `json:"approved_patterns"`
	RejectedPatterns []model.Feedback `json:"rejected_patterns"`
}

// Context retrieves reusable feedback for a company, its sector, and
// optionally a finding type.
func (m *Memory) Context(ctx context.Context, ticker, sector, findingType string) (*Context, error) {
	reuse := true

	companyRows, err := m.store.ListFeedback(ctx, store.FeedbackFilter{
		Ticker:        ticker,
		ApplyToFuture: &reuse,
		Limit:         m.limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "memory: company feedback")
	}

	var sectorRows []model.Feedback
	if sector != "" {
		sectorRows, err = m.store.ListFeedback(ctx, store.FeedbackFilter{
			Sector:        sector,
			Type:          model.FeedbackPattern,
			ApplyToFuture: &reuse,
			Limit:         m.limit,
		})
		if err != nil {
			return nil, eris.Wrap(err, "memory: sector feedback")
		}
	}

	validated, err := m.store.ListFeedback(ctx, store.FeedbackFilter{
		Type:          model.FeedbackValidation,
		ApplyToFuture: &reuse,
		Limit:         m.limit * 2,
	})
	if err != nil {
		return nil, eris.Wrap(err, "memory: validation feedback")
	}

	mc := &Context{CompanySpecific: companyRows, SectorPatterns: sectorRows}
	for _, fb := range validated {
		if findingType != "" && fb.FindingType != "" && fb.FindingType != findingType {
			continue
		}
		switch fb.Status {
		case model.ValidationApproved:
			mc.ApprovedPatterns = append(mc.ApprovedPatterns, fb)
		case model.ValidationRejected:
			mc.RejectedPatterns = append(mc.RejectedPatterns, fb)
		}
	}

	zap.L().Debug("retrieved feedback context",
		zap.String("ticker", ticker),
		zap.Int("company_specific", len(mc.CompanySpecific)),
		zap.Int("sector_patterns", len(mc.SectorPatterns)),
		zap.Int("approved", len(mc.ApprovedPatterns)),
		zap.Int("rejected", len(mc.RejectedPatterns)))
	return mc, nil
}

// Empty reports whether no reusable feedback was found.
func (c *Context) Empty() bool {
	return len(c.CompanySpecific) == 0 && len(c.SectorPatterns) == 0 &&
		len(c.ApprovedPatterns) == 0 && len(c.RejectedPatterns) == 0
}

// Format renders the context as a text block for prompt injection.
func (c *Context) Format() string {
	var parts []string

	if len(c.CompanySpecific) > 0 {
		parts = append(parts, "### Past Feedback for This Company:")
		for _, fb := range head(c.CompanySpecific, 3) {
			status := "N/A"
			if fb.Status != "" {
				status = string(fb.Status)
			}
			parts = append(parts, fmt.Sprintf("- [%s] %s", status, truncate(fb.Content, 200)))
		}
	}

	if len(c.SectorPatterns) > 0 {
		parts = append(parts, "\n### Sector-Specific Patterns:")
		for _, fb := range head(c.SectorPatterns, 3) {
			parts = append(parts, "- "+truncate(fb.Content, 200))
		}
	}

	if len(c.RejectedPatterns) > 0 {
		parts = append(parts, "\n### Previously Rejected Findings (avoid similar):")
		for _, fb := range head(c.RejectedPatterns, 3) {
			parts = append(parts, "- "+truncate(fb.Content, 150))
		}
	}

	if len(parts) == 0 {
		return "No prior feedback available."
	}
	return strings.Join(parts, "\n")
}

// Adjust recomputes a finding's confidence from the feedback context
// for its company and type. The result is advisory; callers persist it
// through the store's ValidateFinding.
func (m *Memory) Adjust(ctx context.Context, f *model.Finding, ticker, sector string) (adjusted, delta float64, err error) {
	mc, err := m.Context(ctx, ticker, sector, f.FindingType)
	if err != nil {
		return 0, 0, err
	}

	approved := feedbackWeights(mc.ApprovedPatterns)
	rejected := feedbackWeights(mc.RejectedPatterns)
	patterns := len(mc.SectorPatterns)

	adjusted, delta = AdjustedConfidence(f.Confidence, approved, rejected, patterns)
	return adjusted, delta, nil
}

// feedbackWeights derives a relevance weight per row. A recorded
// confidence adjustment implies how strongly the user felt; rows
// without one use the default weight.
func feedbackWeights(rows []model.Feedback) []float64 {
	if len(rows) == 0 {
		return nil
	}
	weights := make([]float64, len(rows))
	for i, fb := range rows {
		w := DefaultFeedbackWeight
		if adj := fb.ConfidenceAdjustment; adj != 0 {
			w = min(1.0, abs(adj)/100*2)
		}
		weights[i] = w
	}
	return weights
}

func head(rows []model.Feedback, n int) []model.Feedback {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// truncate shortens s to at most n bytes, backing up so a multi-byte
// rune is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
