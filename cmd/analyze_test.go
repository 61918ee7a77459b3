package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSubmitOptions() submitOptions {
	return submitOptions{
		MaxIterations: 3,
		Concurrency:   2,
		RatePerSec:    1000, // no throttling in tests
		MemoryLimit:   10,
	}
}

func TestSubmitAnalyses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	opts := testSubmitOptions()
	opts.Sector = "Information Technology"
	require.NoError(t, submitAnalyses(ctx, st, []string{"INFY", "TCS", "WIPRO"}, opts))

	analyses, err := st.ListAnalyses(ctx, store.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, analyses, 3)

	for _, a := range analyses {
		assert.Equal(t, model.StatusPending, a.Status)
		assert.Equal(t, "Information Technology", a.Sector)

		sess, err := st.GetSession(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, sess, a.Ticker)
		assert.Equal(t, 3, sess.MaxIterations)
		assert.Equal(t, 0, sess.IterationCount)
	}
}

func TestSubmitAnalyses_CompanyNameSingleTickerOnly(t *testing.T) {
	st := newTestStore(t)

	opts := testSubmitOptions()
	opts.CompanyName = "Infosys Ltd"
	err := submitAnalyses(context.Background(), st, []string{"INFY", "TCS"}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single ticker")
}

func TestSubmitAnalyses_BadTickerDoesNotAbortBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	opts := testSubmitOptions()
	opts.Depth = model.AnalysisDepth("deep") // invalid, every ticker fails
	err := submitAnalyses(ctx, st, []string{"INFY", "TCS"}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 tickers failed")

	// A single bad ticker fails the command but the good one still queues.
	opts = testSubmitOptions()
	err = submitAnalyses(ctx, st, []string{"INFY", "   "}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 tickers failed")

	analyses, err := st.ListAnalyses(ctx, store.AnalysisFilter{Ticker: "INFY"})
	require.NoError(t, err)
	assert.Len(t, analyses, 1)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 20))
	assert.Equal(t, "exactly twenty bytes", truncateText("exactly twenty bytes", 20))

	long := strings.Repeat("a", 30)
	assert.Equal(t, strings.Repeat("a", 17)+"...", truncateText(long, 20))

	// The cut must land on a rune boundary even for multi-byte text.
	rupees := strings.Repeat("₹", 10) // 3 bytes each
	got := truncateText(rupees, 20)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("₹", 5)+"...", got)
}

func TestFormatAnalysesList(t *testing.T) {
	risk := 61.5
	var buf bytes.Buffer
	formatAnalysesList(&buf, []model.Analysis{
		{ID: "0123456789abcdef", Ticker: "INFY", Sector: "Information Technology",
			Status: model.StatusComplete, RiskScore: &risk, FindingsCount: 4},
		{ID: "fedcba9876543210", Ticker: "TCS", Status: model.StatusPending},
	})

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "INFY")
	assert.Contains(t, out, "61.5")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "-") // pending run has no risk score yet
	assert.NotContains(t, out, "0123456789abcdef")
}
