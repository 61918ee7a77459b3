package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

// Checkpointer persists workflow progress through the session table so
// an interrupted run can resume where it stopped.
type Checkpointer struct {
	store store.Store
}

// NewCheckpointer creates a Checkpointer over the given store.
func NewCheckpointer(st store.Store) *Checkpointer {
	return &Checkpointer{store: st}
}

// Start opens a session for an analysis run.
func (c *Checkpointer) Start(ctx context.Context, analysisID string, maxIterations int) (*model.Session, error) {
	sess, err := c.store.CreateSession(ctx, analysisID, maxIterations)
	if err != nil {
		return nil, err
	}
	zap.L().Info("workflow session started",
		zap.String("session_id", sess.ID),
		zap.String("analysis_id", analysisID),
		zap.Int("max_iterations", sess.MaxIterations))
	return sess, nil
}

// Latest loads the most recent session for an analysis, or nil.
func (c *Checkpointer) Latest(ctx context.Context, analysisID string) (*model.Session, error) {
	return c.store.GetSession(ctx, analysisID)
}

// Advance records that the workflow reached a step, persisting the
// typed state envelope alongside the step name.
func (c *Checkpointer) Advance(ctx context.Context, sessionID string, state State) error {
	if state.Step == "" {
		return eris.New("workflow: advance requires a step")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	step := string(state.Step)
	if err := c.store.CheckpointSession(ctx, sessionID, store.SessionUpdate{
		CurrentStep:   &step,
		WorkflowState: raw,
	}); err != nil {
		return err
	}
	zap.L().Debug("workflow advanced",
		zap.String("session_id", sessionID),
		zap.String("step", step))
	return nil
}

// BeginIteration increments the iteration counter, refusing to start
// an iteration past the session's bound. The bound is policy enforced
// here, not by the schema.
func (c *Checkpointer) BeginIteration(ctx context.Context, sess *model.Session) (int, error) {
	next := sess.IterationCount + 1
	if next > sess.MaxIterations {
		return 0, eris.Errorf("workflow: iteration limit reached (%d of %d) for session %s",
			sess.IterationCount, sess.MaxIterations, sess.ID)
	}
	if err := c.store.CheckpointSession(ctx, sess.ID, store.SessionUpdate{
		IterationCount: &next,
	}); err != nil {
		return 0, err
	}
	sess.IterationCount = next
	zap.L().Info("workflow iteration started",
		zap.String("session_id", sess.ID),
		zap.Int("iteration", next),
		zap.Int("max_iterations", sess.MaxIterations))
	return next, nil
}

// RecordAgentOutput merges one agent's serialized output into the
// session's agent_outputs map. Re-running an agent overwrites its
// previous entry.
func (c *Checkpointer) RecordAgentOutput(ctx context.Context, sess *model.Session, agent model.AgentName, output json.RawMessage) error {
	outputs := map[string]json.RawMessage{}
	if len(sess.AgentOutputs) > 0 {
		if err := json.Unmarshal(sess.AgentOutputs, &outputs); err != nil {
			return eris.Wrapf(err, "workflow: decode agent outputs for session %s", sess.ID)
		}
	}
	outputs[string(agent)] = output

	merged, err := json.Marshal(outputs)
	if err != nil {
		return eris.Wrap(err, "workflow: encode agent outputs")
	}
	if err := c.store.CheckpointSession(ctx, sess.ID, store.SessionUpdate{
		AgentOutputs: merged,
	}); err != nil {
		return err
	}
	sess.AgentOutputs = merged
	return nil
}

// Pause marks the session paused for human review.
func (c *Checkpointer) Pause(ctx context.Context, sessionID string) error {
	now := time.Now().UTC()
	return c.store.CheckpointSession(ctx, sessionID, store.SessionUpdate{
		PausedAt: &now,
	})
}

// Resume marks the session resumed after review.
func (c *Checkpointer) Resume(ctx context.Context, sessionID string) error {
	now := time.Now().UTC()
	return c.store.CheckpointSession(ctx, sessionID, store.SessionUpdate{
		ResumedAt: &now,
	})
}
