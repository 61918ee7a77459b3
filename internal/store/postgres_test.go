package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

var analysisColumnList = []string{
	"id", "company_ticker", "company_name", "sector", "analysis_depth", "status",
	"risk_score", "findings_count", "hitl_mode", "user_id", "created_at", "updated_at", "completed_at",
}

func TestPostgres_CreateAnalysis(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO stock_analyses").
		WithArgs(pgxmock.AnyArg(), "INFY", "Infosys Ltd", "", "full", "pending", "interactive",
			"default", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a, err := st.CreateAnalysis(context.Background(), model.NewAnalysis{
		Ticker:      "infy",
		CompanyName: "Infosys Ltd",
	})
	require.NoError(t, err)
	assert.Equal(t, "INFY", a.Ticker)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, model.DepthFull, a.Depth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateAnalysis_InvalidInputShortCircuits(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	_, err := st.CreateAnalysis(context.Background(), model.NewAnalysis{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker is required")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetAnalysis(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM stock_analyses WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(analysisColumnList).
			AddRow("a1", "INFY", "Infosys Ltd", "Information Technology", "full", "running",
				nil, 0, "interactive", "default", now, now, nil))

	a, err := st.GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, model.StatusRunning, a.Status)
	assert.Nil(t, a.RiskScore)
	assert.Nil(t, a.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionAnalysis(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM stock_analyses WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(analysisColumnList).
			AddRow("a1", "INFY", "", "", "full", "running",
				nil, 0, "interactive", "default", now, now, nil))
	mock.ExpectExec("UPDATE stock_analyses SET status").
		WithArgs("awaiting_review", pgxmock.AnyArg(), "a1", "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.TransitionAnalysis(context.Background(), "a1", model.StatusAwaitingReview, TransitionUpdate{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionAnalysis_IllegalBackward(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM stock_analyses WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(analysisColumnList).
			AddRow("a1", "INFY", "", "", "full", "complete",
				nil, 0, "interactive", "default", now, now, &now))

	err := st.TransitionAnalysis(context.Background(), "a1", model.StatusRunning, TransitionUpdate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionAnalysis_ConcurrentChange(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM stock_analyses WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(analysisColumnList).
			AddRow("a1", "INFY", "", "", "full", "pending",
				nil, 0, "interactive", "default", now, now, nil))
	mock.ExpectExec("UPDATE stock_analyses SET status").
		WithArgs("running", pgxmock.AnyArg(), "a1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.TransitionAnalysis(context.Background(), "a1", model.StatusRunning, TransitionUpdate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changed concurrently")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteAnalysis_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM stock_analyses").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := st.DeleteAnalysis(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateFinding(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO agent_findings").
		WithArgs(pgxmock.AnyArg(), "a1", "forensic", "receivables_quality",
			"Receivables growing faster than revenue", "", "medium", 50.0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), false, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	f, err := st.CreateFinding(context.Background(), model.NewFinding{
		AnalysisID:  "a1",
		Agent:       model.AgentForensic,
		FindingType: "receivables_quality",
		Title:       "Receivables growing faster than revenue",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMedium, f.Severity)
	assert.Equal(t, 50.0, f.Confidence)
	assert.Equal(t, 1, f.Iteration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ValidateFinding_InvalidOutcome(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	err := st.ValidateFinding(context.Background(), "f1", model.Validation("maybe"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid validation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ValidateFinding(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE agent_findings SET user_validation").
		WithArgs("approved", 85.0, "f1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.ValidateFinding(context.Background(), "f1", model.ValidationApproved, ptrFloat(85.0))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateFeedback_NoReferences(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO user_feedback").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "default", "pattern", "", "Textiles", "", "", "",
			"High receivable days are structural in this sector", "", 0.0, true,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	fb, err := st.CreateFeedback(context.Background(), model.NewFeedback{
		Type:          model.FeedbackPattern,
		Content:       "High receivable days are structural in this sector",
		Sector:        "textiles",
		ApplyToFuture: true,
	})
	require.NoError(t, err)
	assert.Nil(t, fb.FindingID)
	assert.Nil(t, fb.AnalysisID)
	assert.Equal(t, "Textiles", fb.Sector)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkInsertFeedback(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"user_feedback"}, bulkFeedbackColumns).WillReturnResult(2)

	n, err := st.BulkInsertFeedback(context.Background(), []model.NewFeedback{
		{Type: model.FeedbackPattern, Content: "receivable days run high in textiles", Sector: "textiles"},
		{Type: model.FeedbackValidation, Content: "pledging finding confirmed", Status: model.ValidationApproved},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkInsertFeedback_RejectsInvalidStatus(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	// No COPY expectation: a bad row must fail before any data is sent.
	_, err := st.BulkInsertFeedback(context.Background(), []model.NewFeedback{
		{Type: model.FeedbackValidation, Content: "fine", Status: model.ValidationApproved},
		{Type: model.FeedbackValidation, Content: "bad verdict", Status: model.Validation("maybe")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "invalid feedback status")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession_NoRows(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_sessions").
		WithArgs("a1").
		WillReturnError(pgx.ErrNoRows)

	sess, err := st.GetSession(context.Background(), "a1")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CheckpointSession_PartialUpdate(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	step := "critic"
	iter := 2
	mock.ExpectExec("UPDATE analysis_sessions SET updated_at").
		WithArgs(pgxmock.AnyArg(), "critic", 2, "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CheckpointSession(context.Background(), "s1", SessionUpdate{
		CurrentStep:    &step,
		IterationCount: &iter,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CheckpointSession_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	step := "report"
	mock.ExpectExec("UPDATE analysis_sessions SET updated_at").
		WithArgs(pgxmock.AnyArg(), "report", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CheckpointSession(context.Background(), "missing", SessionUpdate{CurrentStep: &step})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS stock_analyses").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
