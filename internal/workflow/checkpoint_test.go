package workflow

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
)

func newTestCheckpointer(t *testing.T) (*Checkpointer, store.Store, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	a, err := st.CreateAnalysis(context.Background(), model.NewAnalysis{Ticker: "INFY"})
	require.NoError(t, err)
	return NewCheckpointer(st), st, a.ID
}

func TestCheckpointer_StartAndAdvance(t *testing.T) {
	cp, _, analysisID := newTestCheckpointer(t)
	ctx := context.Background()

	sess, err := cp.Start(ctx, analysisID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMaxIterations, sess.MaxIterations)

	require.NoError(t, cp.Advance(ctx, sess.ID, NewState("", FetchDataState{
		Ticker:          "INFY",
		DocumentsLoaded: 3,
	})))
	require.NoError(t, cp.Advance(ctx, sess.ID, NewState(StepForensic, AgentState{
		Agent:         model.AgentForensic,
		FindingsCount: 2,
		TopSeverity:   model.SeverityHigh,
	})))

	loaded, err := cp.Latest(ctx, analysisID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, string(StepForensic), loaded.CurrentStep)

	state, err := UnmarshalState(loaded.WorkflowState)
	require.NoError(t, err)
	assert.Equal(t, StepForensic, state.Step)
	agent, ok := state.Payload.(AgentState)
	require.True(t, ok)
	assert.Equal(t, 2, agent.FindingsCount)
}

func TestCheckpointer_Advance_RequiresStep(t *testing.T) {
	cp, _, analysisID := newTestCheckpointer(t)
	ctx := context.Background()
	sess, err := cp.Start(ctx, analysisID, 3)
	require.NoError(t, err)

	err = cp.Advance(ctx, sess.ID, State{Payload: AgentState{Agent: model.AgentCritic}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a step")
}

func TestCheckpointer_BeginIteration_Bound(t *testing.T) {
	cp, _, analysisID := newTestCheckpointer(t)
	ctx := context.Background()
	sess, err := cp.Start(ctx, analysisID, 2)
	require.NoError(t, err)

	n, err := cp.BeginIteration(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = cp.BeginIteration(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = cp.BeginIteration(ctx, sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iteration limit reached")

	// The persisted counter never exceeded the bound.
	loaded, err := cp.Latest(ctx, analysisID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.IterationCount)
}

func TestCheckpointer_RecordAgentOutput_Merges(t *testing.T) {
	cp, _, analysisID := newTestCheckpointer(t)
	ctx := context.Background()
	sess, err := cp.Start(ctx, analysisID, 3)
	require.NoError(t, err)

	require.NoError(t, cp.RecordAgentOutput(ctx, sess, model.AgentForensic,
		json.RawMessage(`{"summary":"two findings"}`)))
	require.NoError(t, cp.RecordAgentOutput(ctx, sess, model.AgentRPT,
		json.RawMessage(`{"summary":"related-party loans"}`)))
	// Re-running an agent overwrites its slot.
	require.NoError(t, cp.RecordAgentOutput(ctx, sess, model.AgentForensic,
		json.RawMessage(`{"summary":"revised"}`)))

	loaded, err := cp.Latest(ctx, analysisID)
	require.NoError(t, err)

	var outputs map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(loaded.AgentOutputs, &outputs))
	require.Len(t, outputs, 2)
	assert.JSONEq(t, `{"summary":"revised"}`, string(outputs["forensic"]))
	assert.JSONEq(t, `{"summary":"related-party loans"}`, string(outputs["rpt"]))
}

func TestCheckpointer_PauseResume(t *testing.T) {
	cp, _, analysisID := newTestCheckpointer(t)
	ctx := context.Background()
	sess, err := cp.Start(ctx, analysisID, 3)
	require.NoError(t, err)

	require.NoError(t, cp.Pause(ctx, sess.ID))
	loaded, err := cp.Latest(ctx, analysisID)
	require.NoError(t, err)
	require.NotNil(t, loaded.PausedAt)
	assert.Nil(t, loaded.ResumedAt)

	require.NoError(t, cp.Resume(ctx, sess.ID))
	loaded, err = cp.Latest(ctx, analysisID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ResumedAt)
	assert.False(t, loaded.ResumedAt.Before(*loaded.PausedAt))
}
