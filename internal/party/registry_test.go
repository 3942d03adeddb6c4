package party

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partydeck/internal/types"
)

func testRegistry() *Registry {
	return NewRegistry(5, 200_000)
}

func TestAddAssignsRosterNamesAndFocus(t *testing.T) {
	r := testRegistry()

	s1, err := r.Add("", "")
	require.NoError(t, err)
	assert.Equal(t, "Rogue", s1.Name)
	assert.Equal(t, types.StatusDisconnected, s1.Status)
	assert.Equal(t, 0, s1.ContextUsage)

	s2, err := r.Add("/tmp/project", "Navigator")
	require.NoError(t, err)
	assert.Equal(t, "Navigator", s2.Name)
	require.NotNil(t, s2.Workspace)
	assert.Equal(t, "project", s2.Workspace.Name)

	focused, ok := r.Focused()
	require.True(t, ok)
	assert.Equal(t, s2.ID, focused.ID)
}

func TestPoolCapacity(t *testing.T) {
	r := testRegistry()
	for i := 0; i < 5; i++ {
		_, err := r.Add("", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	_, err := r.Add("", "overflow")
	assert.ErrorIs(t, err, ErrPoolAtCapacity)
	assert.Equal(t, 5, r.Len())
}

func TestCloseNeverDropsBelowOne(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")

	err := r.Close(s.ID)
	assert.ErrorIs(t, err, ErrLastSession)
	assert.Equal(t, 1, r.Len())
}

func TestCloseMovesFocusToNextThenLast(t *testing.T) {
	r := testRegistry()
	a, _ := r.Add("", "a")
	b, _ := r.Add("", "b")
	c, _ := r.Add("", "c")

	// Close the focused middle session: focus prefers the one after.
	require.NoError(t, r.Focus(b.ID))
	require.NoError(t, r.Close(b.ID))
	focused, _ := r.Focused()
	assert.Equal(t, c.ID, focused.ID)

	// Close the focused last session: focus falls back to the last remaining.
	require.NoError(t, r.Close(c.ID))
	focused, _ = r.Focused()
	assert.Equal(t, a.ID, focused.ID)
}

func TestCloseUnknownSession(t *testing.T) {
	r := testRegistry()
	r.Add("", "")
	assert.ErrorIs(t, r.Close("ghost"), ErrUnknownSession)
}

func TestConnectionLifecycle(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")

	require.NoError(t, r.AttachHandle(s.ID, "pty-1"))
	got, _ := r.Get(s.ID)
	assert.Equal(t, types.StatusIdle, got.Status)
	assert.True(t, got.IsConnected)

	r.HandleExit("pty-1", 0)
	got, _ = r.Get(s.ID)
	assert.Equal(t, types.StatusDisconnected, got.Status)
	assert.False(t, got.IsConnected)
	assert.Empty(t, got.Handle)

	// Output for a dead handle is dropped silently.
	r.ApplyOutput("pty-1", "some text")
	got, _ = r.Get(s.ID)
	assert.Equal(t, 0, got.ContextUsage)
}

func TestApplyOutputDrivesStateMachine(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")
	require.NoError(t, r.AttachHandle(s.ID, "pty-1"))

	r.ApplyOutput("pty-1", "Implementing the loadout registry · esc to interrupt")
	got, _ := r.Get(s.ID)
	assert.Equal(t, types.StatusWorking, got.Status)
	assert.Contains(t, got.CurrentTask, "Implementing the loadout registry")
	assert.Greater(t, got.ContextUsage, 0)

	r.ApplyOutput("pty-1", "done\n$ ")
	got, _ = r.Get(s.ID)
	assert.Equal(t, types.StatusIdle, got.Status)

	r.ApplyOutput("pty-1", "Error: tests failed\n$ ")
	got, _ = r.Get(s.ID)
	assert.Equal(t, types.StatusError, got.Status)
}

func TestDisconnectedIgnoresClassifierSignals(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")
	require.NoError(t, r.AttachHandle(s.ID, "pty-1"))
	r.HandleExit("pty-1", 1)

	// Re-attach required before signals apply again.
	require.NoError(t, r.AttachHandle(s.ID, "pty-2"))
	r.ApplyOutput("pty-2", "esc to interrupt")
	got, _ := r.Get(s.ID)
	assert.Equal(t, types.StatusWorking, got.Status)
}

func TestContextUsageAndRecover(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")

	require.NoError(t, r.IncrementContextUsage(s.ID, 150_000))
	require.NoError(t, r.IncrementContextUsage(s.ID, -10)) // ignored
	health, err := r.Health(s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HealthCritical, health)

	require.NoError(t, r.Recover(s.ID))
	got, _ := r.Get(s.ID)
	assert.Equal(t, 0, got.ContextUsage)

	health, _ = r.Health(s.ID)
	assert.Equal(t, types.HealthFull, health)
}

func TestAttachAndClearAssociations(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")

	require.NoError(t, r.AttachLoadout(s.ID, "preset-scout", "Scout", 12_000))
	require.NoError(t, r.AttachPersona(s.ID, "reviewer", "Code Reviewer"))
	require.NoError(t, r.RebindWorkingPath(s.ID, "/srv/app", ""))

	got, _ := r.Get(s.ID)
	require.NotNil(t, got.Loadout)
	assert.Equal(t, "Scout", got.Loadout.Name)
	require.NotNil(t, got.Persona)
	assert.Equal(t, "reviewer", got.Persona.ID)
	require.NotNil(t, got.Workspace)
	assert.Equal(t, "app", got.Workspace.Name)

	require.NoError(t, r.AttachLoadout(s.ID, "", "", 0))
	require.NoError(t, r.AttachPersona(s.ID, "", ""))
	require.NoError(t, r.RebindWorkingPath(s.ID, "", ""))
	got, _ = r.Get(s.ID)
	assert.Nil(t, got.Loadout)
	assert.Nil(t, got.Persona)
	assert.Nil(t, got.Workspace)
}

func TestRenameAndTask(t *testing.T) {
	r := testRegistry()
	s, _ := r.Add("", "")

	require.NoError(t, r.Rename(s.ID, "Bard"))
	require.NoError(t, r.UpdateTask(s.ID, "tuning the lute"))

	got, _ := r.Get(s.ID)
	assert.Equal(t, "Bard", got.Name)
	assert.Equal(t, "tuning the lute", got.CurrentTask)

	assert.ErrorIs(t, r.Rename("ghost", "x"), ErrUnknownSession)
}

func TestRestoreKeepsIdentityWithoutStealingFocus(t *testing.T) {
	r := testRegistry()
	live, _ := r.Add("", "Navigator")

	s, err := r.Restore("sess-old", "Scout", "/srv/app")
	require.NoError(t, err)
	assert.Equal(t, "sess-old", s.ID)
	assert.Equal(t, "Scout", s.Name)
	assert.Equal(t, types.StatusDisconnected, s.Status)
	require.NotNil(t, s.Workspace)
	assert.Equal(t, "app", s.Workspace.Name)

	focused, ok := r.Focused()
	require.True(t, ok)
	assert.Equal(t, live.ID, focused.ID)

	_, err = r.Restore("sess-old", "Scout", "")
	assert.Error(t, err)
}

func TestRestoreIntoEmptyPoolTakesFocus(t *testing.T) {
	r := testRegistry()

	s, err := r.Restore("sess-solo", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Name)

	focused, ok := r.Focused()
	require.True(t, ok)
	assert.Equal(t, "sess-solo", focused.ID)
}
