package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL
// mode, and enables foreign keys so cascade and set-null rules apply.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stock_analyses (
	id             TEXT PRIMARY KEY,
	company_ticker TEXT NOT NULL,
	company_name   TEXT NOT NULL DEFAULT '',
	sector         TEXT NOT NULL DEFAULT '',
	analysis_depth TEXT NOT NULL DEFAULT 'full',
	status         TEXT NOT NULL DEFAULT 'pending',
	risk_score     REAL CHECK (risk_score IS NULL OR (risk_score >= 0 AND risk_score <= 100)),
	findings_count INTEGER NOT NULL DEFAULT 0,
	hitl_mode      TEXT NOT NULL DEFAULT 'interactive',
	user_id        TEXT NOT NULL DEFAULT 'default',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at   DATETIME
);

CREATE TABLE IF NOT EXISTS agent_findings (
	id                    TEXT PRIMARY KEY,
	analysis_id           TEXT NOT NULL REFERENCES stock_analyses(id) ON DELETE CASCADE,
	agent_name            TEXT NOT NULL,
	finding_type          TEXT NOT NULL,
	title                 TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	severity              TEXT NOT NULL DEFAULT 'medium',
	confidence            REAL NOT NULL DEFAULT 50.0 CHECK (confidence >= 0 AND confidence <= 100),
	adjusted_confidence   REAL CHECK (adjusted_confidence IS NULL OR (adjusted_confidence >= 0 AND adjusted_confidence <= 100)),
	evidence              TEXT NOT NULL DEFAULT '[]',
	industry_benchmark    TEXT,
	requires_human_review INTEGER NOT NULL DEFAULT 0,
	user_validation       TEXT,
	iteration             INTEGER NOT NULL DEFAULT 1,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS user_feedback (
	id                    TEXT PRIMARY KEY,
	finding_id            TEXT REFERENCES agent_findings(id) ON DELETE SET NULL,
	analysis_id           TEXT REFERENCES stock_analyses(id) ON DELETE SET NULL,
	user_id               TEXT NOT NULL DEFAULT 'default',
	feedback_type         TEXT NOT NULL,
	company_ticker        TEXT NOT NULL DEFAULT '',
	sector                TEXT NOT NULL DEFAULT '',
	agent_name            TEXT NOT NULL DEFAULT '',
	finding_type          TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT '',
	content               TEXT NOT NULL,
	reasoning             TEXT NOT NULL DEFAULT '',
	confidence_adjustment REAL NOT NULL DEFAULT 0,
	apply_to_future       INTEGER NOT NULL DEFAULT 0,
	metadata              TEXT NOT NULL DEFAULT '{}',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_sessions (
	id              TEXT PRIMARY KEY,
	analysis_id     TEXT NOT NULL REFERENCES stock_analyses(id) ON DELETE CASCADE,
	current_step    TEXT NOT NULL DEFAULT '',
	workflow_state  TEXT,
	agent_outputs   TEXT,
	iteration_count INTEGER NOT NULL DEFAULT 0,
	max_iterations  INTEGER NOT NULL DEFAULT 3,
	paused_at       DATETIME,
	resumed_at      DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_stock_analyses_ticker ON stock_analyses(company_ticker);
CREATE INDEX IF NOT EXISTS idx_stock_analyses_status ON stock_analyses(status);
CREATE INDEX IF NOT EXISTS idx_stock_analyses_user ON stock_analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_agent_findings_analysis ON agent_findings(analysis_id);
CREATE INDEX IF NOT EXISTS idx_agent_findings_agent ON agent_findings(agent_name);
CREATE INDEX IF NOT EXISTS idx_agent_findings_severity ON agent_findings(severity);
CREATE INDEX IF NOT EXISTS idx_agent_findings_validation ON agent_findings(user_validation);
CREATE INDEX IF NOT EXISTS idx_user_feedback_finding ON user_feedback(finding_id);
CREATE INDEX IF NOT EXISTS idx_user_feedback_ticker ON user_feedback(company_ticker);
CREATE INDEX IF NOT EXISTS idx_user_feedback_type ON user_feedback(feedback_type);
CREATE INDEX IF NOT EXISTS idx_user_feedback_sector ON user_feedback(sector);
CREATE INDEX IF NOT EXISTS idx_analysis_sessions_analysis ON analysis_sessions(analysis_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Analyses ---

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, in model.NewAnalysis) (*model.Analysis, error) {
	in, err := applyAnalysisDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stock_analyses
		 (id, company_ticker, company_name, sector, analysis_depth, status, hitl_mode, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Ticker, in.CompanyName, in.Sector, string(in.Depth),
		string(model.StatusPending), string(in.HITLMode), in.UserID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}

	return &model.Analysis{
		ID:          id,
		Ticker:      in.Ticker,
		CompanyName: in.CompanyName,
		Sector:      in.Sector,
		Depth:       in.Depth,
		Status:      model.StatusPending,
		HITLMode:    in.HITLMode,
		UserID:      in.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const analysisColumns = `id, company_ticker, company_name, sector, analysis_depth, status,
	risk_score, findings_count, hitl_mode, user_id, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM stock_analyses WHERE id = ?`, analysisID)
	return scanAnalysis(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM stock_analyses WHERE 1=1`
	var args []any

	if filter.Ticker != "" {
		query += ` AND company_ticker = ?`
		args = append(args, model.NormalizeTicker(filter.Ticker))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) TransitionAnalysis(ctx context.Context, analysisID string, to model.AnalysisStatus, upd TransitionUpdate) error {
	cur, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	if !model.CanTransition(cur.Status, to) {
		return eris.Errorf("sqlite: illegal transition %s -> %s for analysis %s", cur.Status, to, analysisID)
	}

	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), now}
	if upd.RiskScore != nil {
		sets = append(sets, "risk_score = ?")
		args = append(args, model.ClampScore(*upd.RiskScore))
	}
	if upd.FindingsCount != nil {
		sets = append(sets, "findings_count = ?")
		args = append(args, *upd.FindingsCount)
	}
	if to == model.StatusComplete {
		sets = append(sets, "completed_at = ?")
		args = append(args, now)
	}

	// Compare-and-set on the previous status so two orchestrators cannot
	// both advance the same analysis.
	args = append(args, analysisID, string(cur.Status))
	res, err := s.db.ExecContext(ctx,
		`UPDATE stock_analyses SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition analysis %s", analysisID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: analysis %s status changed concurrently", analysisID)
	}
	return nil
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, analysisID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_analyses WHERE id = ?`, analysisID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete analysis %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

// --- Findings ---

const findingColumns = `id, analysis_id, agent_name, finding_type, title, description, severity,
	confidence, adjusted_confidence, evidence, industry_benchmark, requires_human_review,
	user_validation, iteration, created_at`

func (s *SQLiteStore) CreateFinding(ctx context.Context, in model.NewFinding) (*model.Finding, error) {
	in, confidence, err := applyFindingDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	evidenceJSON, err := json.Marshal(in.Evidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal evidence")
	}
	var benchmarkJSON any
	if in.IndustryBenchmark != nil {
		b, err := json.Marshal(in.IndustryBenchmark)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal benchmark")
		}
		benchmarkJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_findings
		 (id, analysis_id, agent_name, finding_type, title, description, severity, confidence,
		  evidence, industry_benchmark, requires_human_review, iteration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.AnalysisID, string(in.Agent), in.FindingType, in.Title, in.Description,
		string(in.Severity), confidence, string(evidenceJSON), benchmarkJSON,
		in.RequiresHumanReview, in.Iteration, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert finding for analysis %s", in.AnalysisID)
	}

	return &model.Finding{
		ID:                  id,
		AnalysisID:          in.AnalysisID,
		Agent:               in.Agent,
		FindingType:         in.FindingType,
		Title:               in.Title,
		Description:         in.Description,
		Severity:            in.Severity,
		Confidence:          confidence,
		Evidence:            in.Evidence,
		IndustryBenchmark:   in.IndustryBenchmark,
		RequiresHumanReview: in.RequiresHumanReview,
		Iteration:           in.Iteration,
		CreatedAt:           now,
	}, nil
}

func (s *SQLiteStore) GetFinding(ctx context.Context, findingID string) (*model.Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM agent_findings WHERE id = ?`, findingID)
	return scanFinding(row)
}

func (s *SQLiteStore) ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM agent_findings WHERE 1=1`
	var args []any

	if filter.AnalysisID != "" {
		query += ` AND analysis_id = ?`
		args = append(args, filter.AnalysisID)
	}
	if filter.Agent != "" {
		query += ` AND agent_name = ?`
		args = append(args, string(filter.Agent))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Validation != "" {
		query += ` AND user_validation = ?`
		args = append(args, string(filter.Validation))
	}
	query += ` ORDER BY CASE severity WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END, created_at`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *f)
	}
	return findings, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

func (s *SQLiteStore) ValidateFinding(ctx context.Context, findingID string, validation model.Validation, adjustedConfidence *float64) error {
	if !validation.Valid() {
		return eris.Errorf("store: invalid validation %q", validation)
	}

	sets := []string{"user_validation = ?"}
	args := []any{string(validation)}
	if adjustedConfidence != nil {
		sets = append(sets, "adjusted_confidence = ?")
		args = append(args, model.ClampScore(*adjustedConfidence))
	}
	args = append(args, findingID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_findings SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: validate finding %s", findingID)
	}
	return checkRowsAffected(res, "finding", findingID)
}

// --- Feedback ---

const feedbackColumns = `id, finding_id, analysis_id, user_id, feedback_type, company_ticker,
	sector, agent_name, finding_type, status, content, reasoning, confidence_adjustment,
	apply_to_future, metadata, created_at`

func (s *SQLiteStore) CreateFeedback(ctx context.Context, in model.NewFeedback) (*model.Feedback, error) {
	in, err := applyFeedbackDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	metadataJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_feedback
		 (id, finding_id, analysis_id, user_id, feedback_type, company_ticker, sector, agent_name,
		  finding_type, status, content, reasoning, confidence_adjustment, apply_to_future, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.FindingID, in.AnalysisID, in.UserID, string(in.Type), in.Ticker, in.Sector,
		in.AgentName, in.FindingType, string(in.Status), in.Content, in.Reasoning,
		in.ConfidenceAdjustment, in.ApplyToFuture, string(metadataJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert feedback")
	}

	return &model.Feedback{
		ID:                   id,
		FindingID:            in.FindingID,
		AnalysisID:           in.AnalysisID,
		UserID:               in.UserID,
		Type:                 in.Type,
		Ticker:               in.Ticker,
		Sector:               in.Sector,
		AgentName:            in.AgentName,
		FindingType:          in.FindingType,
		Status:               in.Status,
		Content:              in.Content,
		Reasoning:            in.Reasoning,
		ConfidenceAdjustment: in.ConfidenceAdjustment,
		ApplyToFuture:        in.ApplyToFuture,
		Metadata:             in.Metadata,
		CreatedAt:            now,
	}, nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM user_feedback WHERE 1=1`
	var args []any

	if filter.FindingID != "" {
		query += ` AND finding_id = ?`
		args = append(args, filter.FindingID)
	}
	if filter.Ticker != "" {
		query += ` AND company_ticker = ?`
		args = append(args, model.NormalizeTicker(filter.Ticker))
	}
	if filter.Sector != "" {
		query += ` AND sector = ?`
		args = append(args, model.NormalizeSector(filter.Sector))
	}
	if filter.Type != "" {
		query += ` AND feedback_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.ApplyToFuture != nil {
		query += ` AND apply_to_future = ?`
		args = append(args, *filter.ApplyToFuture)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var feedback []model.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		feedback = append(feedback, *fb)
	}
	return feedback, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

// --- Sessions ---

const sessionColumns = `id, analysis_id, current_step, workflow_state, agent_outputs,
	iteration_count, max_iterations, paused_at, resumed_at, created_at, updated_at`

func (s *SQLiteStore) CreateSession(ctx context.Context, analysisID string, maxIterations int) (*model.Session, error) {
	if maxIterations <= 0 {
		maxIterations = model.DefaultMaxIterations
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_sessions (id, analysis_id, max_iterations, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, analysisID, maxIterations, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert session for analysis %s", analysisID)
	}

	return &model.Session{
		ID:            id,
		AnalysisID:    analysisID,
		MaxIterations: maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GetSession returns the most recent session for an analysis, or nil if
// none exists.
func (s *SQLiteStore) GetSession(ctx context.Context, analysisID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions
		 WHERE analysis_id = ? ORDER BY created_at DESC LIMIT 1`,
		analysisID,
	)
	sess, err := scanSession(row)
	if err != nil {
		if eris.Is(err, errSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) CheckpointSession(ctx context.Context, sessionID string, upd SessionUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if upd.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *upd.CurrentStep)
	}
	if upd.WorkflowState != nil {
		sets = append(sets, "workflow_state = ?")
		args = append(args, string(upd.WorkflowState))
	}
	if upd.AgentOutputs != nil {
		sets = append(sets, "agent_outputs = ?")
		args = append(args, string(upd.AgentOutputs))
	}
	if upd.IterationCount != nil {
		sets = append(sets, "iteration_count = ?")
		args = append(args, *upd.IterationCount)
	}
	if upd.PausedAt != nil {
		sets = append(sets, "paused_at = ?")
		args = append(args, upd.PausedAt.UTC())
	}
	if upd.ResumedAt != nil {
		sets = append(sets, "resumed_at = ?")
		args = append(args, upd.ResumedAt.UTC())
	}
	args = append(args, sessionID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: checkpoint session %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

// --- helpers ---

var errSessionNotFound = eris.New("session not found")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scannable) (*model.Analysis, error) {
	var a model.Analysis
	var riskScore sql.NullFloat64
	var completedAt sql.NullTime

	err := row.Scan(&a.ID, &a.Ticker, &a.CompanyName, &a.Sector, &a.Depth, &a.Status,
		&riskScore, &a.FindingsCount, &a.HITLMode, &a.UserID, &a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("analysis not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan analysis")
	}

	if riskScore.Valid {
		a.RiskScore = &riskScore.Float64
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func scanFinding(row scannable) (*model.Finding, error) {
	var f model.Finding
	var adjusted sql.NullFloat64
	var evidenceJSON string
	var benchmarkJSON, validation sql.NullString

	err := row.Scan(&f.ID, &f.AnalysisID, &f.Agent, &f.FindingType, &f.Title, &f.Description,
		&f.Severity, &f.Confidence, &adjusted, &evidenceJSON, &benchmarkJSON,
		&f.RequiresHumanReview, &validation, &f.Iteration, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("finding not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan finding")
	}

	if adjusted.Valid {
		f.AdjustedConfidence = &adjusted.Float64
	}
	if err := json.Unmarshal([]byte(evidenceJSON), &f.Evidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal evidence")
	}
	if benchmarkJSON.Valid && benchmarkJSON.String != "" {
		if err := json.Unmarshal([]byte(benchmarkJSON.String), &f.IndustryBenchmark); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal benchmark")
		}
	}
	if validation.Valid {
		f.UserValidation = model.Validation(validation.String)
	}
	return &f, nil
}

func scanFeedback(row scannable) (*model.Feedback, error) {
	var fb model.Feedback
	var findingID, analysisID sql.NullString
	var metadataJSON string

	err := row.Scan(&fb.ID, &findingID, &analysisID, &fb.UserID, &fb.Type, &fb.Ticker,
		&fb.Sector, &fb.AgentName, &fb.FindingType, &fb.Status, &fb.Content, &fb.Reasoning,
		&fb.ConfidenceAdjustment, &fb.ApplyToFuture, &metadataJSON, &fb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("feedback not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan feedback")
	}

	if findingID.Valid {
		fb.FindingID = &findingID.String
	}
	if analysisID.Valid {
		fb.AnalysisID = &analysisID.String
	}
	if err := json.Unmarshal([]byte(metadataJSON), &fb.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
	}
	return &fb, nil
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var workflowState, agentOutputs sql.NullString
	var pausedAt, resumedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.AnalysisID, &sess.CurrentStep, &workflowState, &agentOutputs,
		&sess.IterationCount, &sess.MaxIterations, &pausedAt, &resumedAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}

	if workflowState.Valid {
		sess.WorkflowState = json.RawMessage(workflowState.String)
	}
	if agentOutputs.Valid {
		sess.AgentOutputs = json.RawMessage(agentOutputs.String)
	}
	if pausedAt.Valid {
		t := pausedAt.Time
		sess.PausedAt = &t
	}
	if resumedAt.Valid {
		t := resumedAt.Time
		sess.ResumedAt = &t
	}
	return &sess, nil
}
