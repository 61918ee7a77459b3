package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/forensicvalue/forensic-cli/internal/db"
	"github.com/forensicvalue/forensic-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of the orchestrator write loop.
var preparedStatements = map[string]string{
	"insert_finding": `INSERT INTO agent_findings
		(id, analysis_id, agent_name, finding_type, title, description, severity, confidence,
		 evidence, industry_benchmark, requires_human_review, iteration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"get_analysis": `SELECT ` + analysisColumns + ` FROM stock_analyses WHERE id = $1`,
	"get_finding":  `SELECT ` + findingColumns + ` FROM agent_findings WHERE id = $1`,
	"get_session": `SELECT ` + sessionColumns + ` FROM analysis_sessions
		WHERE analysis_id = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stock_analyses (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_ticker TEXT NOT NULL,
	company_name   TEXT NOT NULL DEFAULT '',
	sector         TEXT NOT NULL DEFAULT '',
	analysis_depth TEXT NOT NULL DEFAULT 'full',
	status         TEXT NOT NULL DEFAULT 'pending',
	risk_score     NUMERIC(5,2) CHECK (risk_score IS NULL OR (risk_score >= 0 AND risk_score <= 100)),
	findings_count INTEGER NOT NULL DEFAULT 0,
	hitl_mode      TEXT NOT NULL DEFAULT 'interactive',
	user_id        TEXT NOT NULL DEFAULT 'default',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS agent_findings (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	analysis_id           TEXT NOT NULL REFERENCES stock_analyses(id) ON DELETE CASCADE,
	agent_name            TEXT NOT NULL,
	finding_type          TEXT NOT NULL,
	title                 TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	severity              TEXT NOT NULL DEFAULT 'medium',
	confidence            NUMERIC(5,2) NOT NULL DEFAULT 50.0 CHECK (confidence >= 0 AND confidence <= 100),
	adjusted_confidence   NUMERIC(5,2) CHECK (adjusted_confidence IS NULL OR (adjusted_confidence >= 0 AND adjusted_confidence <= 100)),
	evidence              JSONB NOT NULL DEFAULT '[]',
	industry_benchmark    JSONB,
	requires_human_review BOOLEAN NOT NULL DEFAULT false,
	user_validation       TEXT,
	iteration             INTEGER NOT NULL DEFAULT 1,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_feedback (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	confidence_adjustment NUMERIC(5,2) NOT NULL DEFAULT 0,
	apply_to_future       BOOLEAN NOT NULL DEFAULT false,
	metadata              JSONB NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_sessions (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	analysis_id     TEXT NOT NULL REFERENCES stock_analyses(id) ON DELETE CASCADE,
	current_step    TEXT NOT NULL DEFAULT '',
	workflow_state  JSONB,
	agent_outputs   JSONB,
	iteration_count INTEGER NOT NULL DEFAULT 0,
	max_iterations  INTEGER NOT NULL DEFAULT 3,
	paused_at       TIMESTAMPTZ,
	resumed_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Analyses ---

func (s *PostgresStore) CreateAnalysis(ctx context.Context, in model.NewAnalysis) (*model.Analysis, error) {
	in, err := applyAnalysisDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO stock_analyses
		 (id, company_ticker, company_name, sector, analysis_depth, status, hitl_mode, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, in.Ticker, in.CompanyName, in.Sector, string(in.Depth),
		string(model.StatusPending), string(in.HITLMode), in.UserID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
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

func (s *PostgresStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM stock_analyses WHERE id = $1`, analysisID)
	a, err := scanPgAnalysis(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", analysisID)
	}
	return a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM stock_analyses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Ticker != "" {
		query += fmt.Sprintf(` AND company_ticker = $%d`, argIdx)
		args = append(args, model.NormalizeTicker(filter.Ticker))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanPgAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		analyses = append(analyses, *a)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) TransitionAnalysis(ctx context.Context, analysisID string, to model.AnalysisStatus, upd TransitionUpdate) error {
	cur, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	if !model.CanTransition(cur.Status, to) {
		return eris.Errorf("postgres: illegal transition %s -> %s for analysis %s", cur.Status, to, analysisID)
	}

	now := time.Now().UTC()
	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{string(to), now}
	argIdx := 3

	if upd.RiskScore != nil {
		sets = append(sets, fmt.Sprintf("risk_score = $%d", argIdx))
		args = append(args, model.ClampScore(*upd.RiskScore))
		argIdx++
	}
	if upd.FindingsCount != nil {
		sets = append(sets, fmt.Sprintf("findings_count = $%d", argIdx))
		args = append(args, *upd.FindingsCount)
		argIdx++
	}
	if to == model.StatusComplete {
		sets = append(sets, fmt.Sprintf("completed_at = $%d", argIdx))
		args = append(args, now)
		argIdx++
	}

	query := fmt.Sprintf(`UPDATE stock_analyses SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(sets, ", "), argIdx, argIdx+1)
	args = append(args, analysisID, string(cur.Status))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition analysis %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: analysis %s status changed concurrently", analysisID)
	}
	return nil
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, analysisID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stock_analyses WHERE id = $1`, analysisID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete analysis %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

// --- Findings ---

func (s *PostgresStore) CreateFinding(ctx context.Context, in model.NewFinding) (*model.Finding, error) {
	in, confidence, err := applyFindingDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	evidenceJSON, err := json.Marshal(in.Evidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal evidence")
	}
	var benchmarkJSON []byte
	if in.IndustryBenchmark != nil {
		benchmarkJSON, err = json.Marshal(in.IndustryBenchmark)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal benchmark")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_findings
		 (id, analysis_id, agent_name, finding_type, title, description, severity, confidence,
		  evidence, industry_benchmark, requires_human_review, iteration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, in.AnalysisID, string(in.Agent), in.FindingType, in.Title, in.Description,
		string(in.Severity), confidence, evidenceJSON, benchmarkJSON,
		in.RequiresHumanReview, in.Iteration, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert finding for analysis %s", in.AnalysisID)
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

func (s *PostgresStore) GetFinding(ctx context.Context, findingID string) (*model.Finding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+findingColumns+` FROM agent_findings WHERE id = $1`, findingID)
	f, err := scanPgFinding(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get finding %s", findingID)
	}
	return f, nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM agent_findings WHERE true`
	args := []any{}
	argIdx := 1

	if filter.AnalysisID != "" {
		query += fmt.Sprintf(` AND analysis_id = $%d`, argIdx)
		args = append(args, filter.AnalysisID)
		argIdx++
	}
	if filter.Agent != "" {
		query += fmt.Sprintf(` AND agent_name = $%d`, argIdx)
		args = append(args, string(filter.Agent))
		argIdx++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(` AND severity = $%d`, argIdx)
		args = append(args, string(filter.Severity))
		argIdx++
	}
	if filter.Validation != "" {
		query += fmt.Sprintf(` AND user_validation = $%d`, argIdx)
		args = append(args, string(filter.Validation))
		argIdx++
	}
	query += ` ORDER BY CASE severity WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END, created_at`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		f, err := scanPgFinding(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		findings = append(findings, *f)
	}
	return findings, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func (s *PostgresStore) ValidateFinding(ctx context.Context, findingID string, validation model.Validation, adjustedConfidence *float64) error {
	if !validation.Valid() {
		return eris.Errorf("store: invalid validation %q", validation)
	}

	sets := []string{"user_validation = $1"}
	args := []any{string(validation)}
	argIdx := 2
	if adjustedConfidence != nil {
		sets = append(sets, fmt.Sprintf("adjusted_confidence = $%d", argIdx))
		args = append(args, model.ClampScore(*adjustedConfidence))
		argIdx++
	}
	query := fmt.Sprintf(`UPDATE agent_findings SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIdx)
	args = append(args, findingID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: validate finding %s", findingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("finding not found: %s", findingID)
	}
	return nil
}

// --- Feedback ---

func (s *PostgresStore) CreateFeedback(ctx context.Context, in model.NewFeedback) (*model.Feedback, error) {
	in, err := applyFeedbackDefaults(in)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	metadataJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_feedback
		 (id, finding_id, analysis_id, user_id, feedback_type, company_ticker, sector, agent_name,
		  finding_type, status, content, reasoning, confidence_adjustment, apply_to_future, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		id, in.FindingID, in.AnalysisID, in.UserID, string(in.Type), in.Ticker, in.Sector,
		in.AgentName, in.FindingType, string(in.Status), in.Content, in.Reasoning,
		in.ConfidenceAdjustment, in.ApplyToFuture, metadataJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert feedback")
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

// bulkFeedbackColumns is the COPY column order for BulkInsertFeedback,
// matching feedbackColumns.
var bulkFeedbackColumns = []string{
	"id", "finding_id", "analysis_id", "user_id", "feedback_type", "company_ticker",
	"sector", "agent_name", "finding_type", "status", "content", "reasoning",
	"confidence_adjustment", "apply_to_future", "metadata", "created_at",
}

// BulkInsertFeedback loads feedback rows through the COPY protocol.
// Every row passes the same defaulting and enum validation as
// CreateFeedback, so a bad row rejects the whole batch before any
// data is sent.
func (s *PostgresStore) BulkInsertFeedback(ctx context.Context, entries []model.NewFeedback) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for i, in := range entries {
		in, err := applyFeedbackDefaults(in)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: bulk feedback row %d", i+1)
		}
		metadataJSON, err := json.Marshal(in.Metadata)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: bulk feedback row %d: marshal metadata", i+1)
		}
		rows = append(rows, []any{
			uuid.New().String(), in.FindingID, in.AnalysisID, in.UserID, string(in.Type),
			in.Ticker, in.Sector, in.AgentName, in.FindingType, string(in.Status),
			in.Content, in.Reasoning, in.ConfidenceAdjustment, in.ApplyToFuture,
			metadataJSON, now,
		})
	}
	return db.CopyFrom(ctx, s.pool, "user_feedback", bulkFeedbackColumns, rows)
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM user_feedback WHERE true`
	args := []any{}
	argIdx := 1

	if filter.FindingID != "" {
		query += fmt.Sprintf(` AND finding_id = $%d`, argIdx)
		args = append(args, filter.FindingID)
		argIdx++
	}
	if filter.Ticker != "" {
		query += fmt.Sprintf(` AND company_ticker = $%d`, argIdx)
		args = append(args, model.NormalizeTicker(filter.Ticker))
		argIdx++
	}
	if filter.Sector != "" {
		query += fmt.Sprintf(` AND sector = $%d`, argIdx)
		args = append(args, model.NormalizeSector(filter.Sector))
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(` AND feedback_type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if filter.ApplyToFuture != nil {
		query += fmt.Sprintf(` AND apply_to_future = $%d`, argIdx)
		args = append(args, *filter.ApplyToFuture)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var feedback []model.Feedback
	for rows.Next() {
		fb, err := scanPgFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		feedback = append(feedback, *fb)
	}
	return feedback, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, analysisID string, maxIterations int) (*model.Session, error) {
	if maxIterations <= 0 {
		maxIterations = model.DefaultMaxIterations
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_sessions (id, analysis_id, max_iterations, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, analysisID, maxIterations, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert session for analysis %s", analysisID)
	}

	return &model.Session{
		ID:            id,
		AnalysisID:    analysisID,
		MaxIterations: maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, analysisID string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions
		 WHERE analysis_id = $1 ORDER BY created_at DESC LIMIT 1`,
		analysisID,
	)
	sess, err := scanPgSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get session for analysis %s", analysisID)
	}
	return sess, nil
}

func (s *PostgresStore) CheckpointSession(ctx context.Context, sessionID string, upd SessionUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	argIdx := 2

	appendSet := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}

	if upd.CurrentStep != nil {
		appendSet("current_step", *upd.CurrentStep)
	}
	if upd.WorkflowState != nil {
		appendSet("workflow_state", []byte(upd.WorkflowState))
	}
	if upd.AgentOutputs != nil {
		appendSet("agent_outputs", []byte(upd.AgentOutputs))
	}
	if upd.IterationCount != nil {
		appendSet("iteration_count", *upd.IterationCount)
	}
	if upd.PausedAt != nil {
		appendSet("paused_at", upd.PausedAt.UTC())
	}
	if upd.ResumedAt != nil {
		appendSet("resumed_at", upd.ResumedAt.UTC())
	}

	query := fmt.Sprintf(`UPDATE analysis_sessions SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIdx)
	args = append(args, sessionID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: checkpoint session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// --- scan helpers (pgx uses plain pointers for nullables) ---

func scanPgAnalysis(row pgx.Row) (*model.Analysis, error) {
	var a model.Analysis
	var riskScore *float64
	var completedAt *time.Time

	err := row.Scan(&a.ID, &a.Ticker, &a.CompanyName, &a.Sector, &a.Depth, &a.Status,
		&riskScore, &a.FindingsCount, &a.HITLMode, &a.UserID, &a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	a.RiskScore = riskScore
	a.CompletedAt = completedAt
	return &a, nil
}

func scanPgFinding(row pgx.Row) (*model.Finding, error) {
	var f model.Finding
	var adjusted *float64
	var evidenceJSON []byte
	var benchmarkJSON []byte
	var validation *string

	err := row.Scan(&f.ID, &f.AnalysisID, &f.Agent, &f.FindingType, &f.Title, &f.Description,
		&f.Severity, &f.Confidence, &adjusted, &evidenceJSON, &benchmarkJSON,
		&f.RequiresHumanReview, &validation, &f.Iteration, &f.CreatedAt)
	if err != nil {
		return nil, err
	}

	f.AdjustedConfidence = adjusted
	if err := json.Unmarshal(evidenceJSON, &f.Evidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal evidence")
	}
	if len(benchmarkJSON) > 0 {
		if err := json.Unmarshal(benchmarkJSON, &f.IndustryBenchmark); err != nil {
			return nil, eris.Wrap(err, "unmarshal benchmark")
		}
	}
	if validation != nil {
		f.UserValidation = model.Validation(*validation)
	}
	return &f, nil
}

func scanPgFeedback(row pgx.Row) (*model.Feedback, error) {
	var fb model.Feedback
	var metadataJSON []byte

	err := row.Scan(&fb.ID, &fb.FindingID, &fb.AnalysisID, &fb.UserID, &fb.Type, &fb.Ticker,
		&fb.Sector, &fb.AgentName, &fb.FindingType, &fb.Status, &fb.Content, &fb.Reasoning,
		&fb.ConfidenceAdjustment, &fb.ApplyToFuture, &metadataJSON, &fb.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadataJSON, &fb.Metadata); err != nil {
		return nil, eris.Wrap(err, "unmarshal metadata")
	}
	return &fb, nil
}

func scanPgSession(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	var workflowState, agentOutputs []byte
	var pausedAt, resumedAt *time.Time

	err := row.Scan(&sess.ID, &sess.AnalysisID, &sess.CurrentStep, &workflowState, &agentOutputs,
		&sess.IterationCount, &sess.MaxIterations, &pausedAt, &resumedAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if workflowState != nil {
		sess.WorkflowState = json.RawMessage(workflowState)
	}
	if agentOutputs != nil {
		sess.AgentOutputs = json.RawMessage(agentOutputs)
	}
	sess.PausedAt = pausedAt
	sess.ResumedAt = resumedAt
	return &sess, nil
}
