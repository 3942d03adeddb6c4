package deck

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"partydeck/internal/config"
	"partydeck/internal/host"
	"partydeck/internal/party"
	"partydeck/internal/persona"
	"partydeck/internal/store"
	"partydeck/internal/types"
)

// newTestDeck builds a deck over a real temp workspace containing a
// memory file and two hooks, with a small budget so threshold behavior is
// reachable in tests.
func newTestDeck(t *testing.T) (*Deck, *host.Fake) {
	t.Helper()

	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "CLAUDE.md", "# Project Memory\n\nConventions.\n")
	writeWorkspaceFile(t, ws, filepath.Join(".claude", "settings.json"), `{
		"hooks": {
			"PostToolUse": [{"command": "gofmt -w ."}, {"command": "golangci-lint run"}]
		}
	}`)

	cfg := config.DefaultConfig()
	cfg.Workspace = ws
	cfg.Store.DatabasePath = ":memory:"
	cfg.Scanner.GlobalDir = t.TempDir()
	cfg.Budget.Total = 2_000

	fake := host.NewFake()
	d, err := New(*cfg, fake)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	res, warnings := d.Rescan(context.Background())
	require.Empty(t, res.Errors)
	require.Empty(t, warnings)
	require.Len(t, res.Items, 3)

	return d, fake
}

func writeWorkspaceFile(t *testing.T, ws, rel, content string) {
	t.Helper()
	path := filepath.Join(ws, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newPersistentDeck builds a deck over an existing workspace with a
// file-backed store, so a second deck over the same workspace sees the
// state the first one persisted.
func newPersistentDeck(t *testing.T, ws string) *Deck {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Workspace = ws
	cfg.Store.DatabasePath = filepath.Join(".partydeck", "partydeck.db")
	cfg.Scanner.GlobalDir = filepath.Join(ws, "global")
	cfg.Budget.Total = 2_000

	d, err := New(*cfg, host.NewFake())
	require.NoError(t, err)

	res, _ := d.Rescan(context.Background())
	require.Empty(t, res.Errors)
	return d
}

func helmSlot() types.SlotRef { return types.SlotRef{Category: types.SlotHelm} }
func hookSlot(i int) types.SlotRef {
	return types.SlotRef{Category: types.SlotHooks, Index: i}
}

func TestEquipConfirmFlow(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	// 500 of 2000 commits immediately.
	res, err := d.Equip("memory-project", helmSlot())
	require.NoError(t, err)
	assert.True(t, res.Committed)

	// The hook (503 units) projects past the overloaded boundary and
	// defers.
	res, err = d.Equip("hook-project-posttooluse-0", hookSlot(0))
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.NotNil(t, res.Pending)
	assert.Equal(t, 500, res.Pending.CurrentUsage)
	assert.Equal(t, 1_003, res.Pending.ProjectedUsage)

	confirmed, err := d.ConfirmPending()
	require.NoError(t, err)
	assert.True(t, confirmed.Committed)
	assert.Equal(t, 1_003, d.Stats().Consumed)
	assert.Nil(t, d.Pending())
}

func TestApplyLoadoutSkipsStaleIDs(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	// The artificer preset references plugin ids this workspace lacks.
	warnings, err := d.ApplyLoadout(types.PresetPrefix + "artificer")
	require.NoError(t, err)
	assert.Len(t, warnings, 2)

	eq := d.Equipped()
	require.NotNil(t, eq.Helm)
	assert.Equal(t, "memory-project", eq.Helm.ID)
	assert.Nil(t, eq.Mainhand)
	assert.Nil(t, eq.Offhand)
}

func TestApplyLoadoutReplacesEnabledSet(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	_, err := d.Equip("hook-project-posttooluse-0", hookSlot(0))
	require.NoError(t, err)

	saved, err := d.SaveLoadout("Hooks Only", "🪝", "")
	require.NoError(t, err)

	// Move to a different set, then apply the saved one back.
	_, err = d.ReleaseCapability("hook-project-posttooluse-0")
	require.NoError(t, err)
	_, err = d.Equip("memory-project", helmSlot())
	require.NoError(t, err)

	warnings, err := d.ApplyLoadout(saved.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	eq := d.Equipped()
	assert.Nil(t, eq.Helm)
	require.Len(t, eq.Hooks, 1)
	assert.Equal(t, "hook-project-posttooluse-0", eq.Hooks[0].ID)
	assert.Equal(t, 503, d.Stats().Consumed)
}

func TestApplyLoadoutIsIdempotent(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	id := types.PresetPrefix + "artificer"
	_, err := d.ApplyLoadout(id)
	require.NoError(t, err)
	first := d.Stats()

	_, err = d.ApplyLoadout(id)
	require.NoError(t, err)
	assert.Equal(t, first, d.Stats())
}

func TestRescanPreservesEquippedSurvivors(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	_, err := d.Equip("memory-project", helmSlot())
	require.NoError(t, err)
	res, err := d.Equip("hook-project-posttooluse-1", hookSlot(0))
	require.NoError(t, err)
	if !res.Committed {
		_, err = d.ConfirmPending()
		require.NoError(t, err)
	}

	_, warnings := d.Rescan(context.Background())
	assert.Empty(t, warnings)

	eq := d.Equipped()
	require.NotNil(t, eq.Helm)
	assert.Equal(t, "memory-project", eq.Helm.ID)
	require.Len(t, eq.Hooks, 1)
}

func TestRescanWarnsAboutVanishedCapability(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	_, err := d.Equip("memory-project", helmSlot())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(d.cfg.Workspace, "CLAUDE.md")))

	_, warnings := d.Rescan(context.Background())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "memory-project")
	assert.Nil(t, d.Equipped().Helm)
}

func TestSessionLifecycleThroughHost(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, fake := newTestDeck(t)

	s, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDisconnected, s.Status)

	require.NoError(t, d.ConnectSession(context.Background(), s.ID, host.SpawnOptions{Command: "assistant"}))
	got, err := d.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, got.Status)
	assert.True(t, got.IsConnected)

	require.NoError(t, d.SendInput(s.ID, []byte("build the thing\n")))
	assert.Equal(t, []byte("build the thing\n"), fake.Written(got.Handle))

	fake.PushOutput(got.Handle, "Implementing widgets... esc to interrupt")
	require.Eventually(t, func() bool {
		s, _ := d.Session(s.ID)
		return s.Status == types.StatusWorking
	}, 2*time.Second, 10*time.Millisecond)

	fake.PushExit(got.Handle, 0)
	require.Eventually(t, func() bool {
		s, _ := d.Session(s.ID)
		return s.Status == types.StatusDisconnected && !s.IsConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendInputRequiresConnection(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	s, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)

	err = d.SendInput(s.ID, []byte("hello"))
	assert.ErrorIs(t, err, party.ErrNotConnected)
}

func TestCloseSessionKillsProcess(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	first, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)
	second, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)

	require.NoError(t, d.ConnectSession(context.Background(), second.ID, host.SpawnOptions{Command: "assistant"}))
	require.NoError(t, d.CloseSession(second.ID))

	_, err = d.Session(second.ID)
	assert.ErrorIs(t, err, party.ErrUnknownSession)

	// The pool never drops below one.
	assert.ErrorIs(t, d.CloseSession(first.ID), party.ErrLastSession)
}

func TestAttachLoadoutToSession(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	s, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)

	require.NoError(t, d.AttachLoadoutToSession(s.ID, types.PresetPrefix+"traveler"))
	got, err := d.Session(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Loadout)
	assert.Equal(t, "Traveler", got.Loadout.Name)

	err = d.AttachLoadoutToSession(s.ID, "user-gone")
	assert.Error(t, err)
}

func TestSessionsRestoredAcrossProcesses(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "CLAUDE.md", "# Project Memory\n\nConventions.\n")

	d1 := newPersistentDeck(t, ws)
	first, err := d1.AddSession(ws)
	require.NoError(t, err)
	second, err := d1.AddSession(ws)
	require.NoError(t, err)
	require.NoError(t, d1.RenameSession(second.ID, "Scout"))
	require.NoError(t, d1.Close())

	// Persisted rows carry a real timestamp; ListSessionMeta sorts on it.
	st, err := store.Open(filepath.Join(ws, ".partydeck", "partydeck.db"))
	require.NoError(t, err)
	metas, err := st.ListSessionMeta()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	for _, m := range metas {
		assert.False(t, m.UpdatedAt.IsZero())
	}
	require.NoError(t, st.Close())

	d2 := newPersistentDeck(t, ws)
	defer d2.Close()

	sessions := d2.Sessions()
	require.Len(t, sessions, 2)
	byID := make(map[string]types.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		assert.Equal(t, types.StatusDisconnected, s.Status)
		assert.False(t, s.IsConnected)
		assert.Zero(t, s.ContextUsage)
	}
	require.Contains(t, byID, first.ID)
	require.Contains(t, byID, second.ID)
	assert.Equal(t, "Scout", byID[second.ID].Name)

	// Restored sessions are addressable like freshly added ones.
	require.NoError(t, d2.FocusSession(second.ID))
	require.NoError(t, d2.CloseSession(second.ID))
	assert.Equal(t, 1, len(d2.Sessions()))
}

func TestPendingAllocationSurvivesRestart(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "CLAUDE.md", "# Project Memory\n\nConventions.\n")
	writeWorkspaceFile(t, ws, filepath.Join(".claude", "settings.json"), `{
		"hooks": {
			"PostToolUse": [{"command": "gofmt -w ."}]
		}
	}`)

	d1 := newPersistentDeck(t, ws)
	_, err := d1.Equip("memory-project", helmSlot())
	require.NoError(t, err)
	res, err := d1.Equip("hook-project-posttooluse-0", hookSlot(0))
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.NoError(t, d1.Close())

	d2 := newPersistentDeck(t, ws)
	defer d2.Close()
	warnings, err := d2.RestoreEquipment()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.NotNil(t, d2.Equipped().Helm)
	p := d2.Pending()
	require.NotNil(t, p, "deferred allocation survives the restart")
	assert.Equal(t, "hook-project-posttooluse-0", p.Capability.ID)
	assert.Equal(t, 500, p.CurrentUsage)

	confirmed, err := d2.ConfirmPending()
	require.NoError(t, err)
	require.True(t, confirmed.Committed)
	assert.Equal(t, 1_003, d2.Stats().Consumed)
	assert.Nil(t, d2.Pending())
}

func TestCancelledPendingStaysCancelledAfterRestart(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "CLAUDE.md", "# Project Memory\n\nConventions.\n")
	writeWorkspaceFile(t, ws, filepath.Join(".claude", "settings.json"), `{
		"hooks": {
			"PostToolUse": [{"command": "gofmt -w ."}]
		}
	}`)

	d1 := newPersistentDeck(t, ws)
	_, err := d1.Equip("memory-project", helmSlot())
	require.NoError(t, err)
	res, err := d1.Equip("hook-project-posttooluse-0", hookSlot(0))
	require.NoError(t, err)
	require.False(t, res.Committed)
	d1.CancelPending()
	require.NoError(t, d1.Close())

	d2 := newPersistentDeck(t, ws)
	defer d2.Close()
	_, err = d2.RestoreEquipment()
	require.NoError(t, err)
	assert.Nil(t, d2.Pending())
	assert.Equal(t, 500, d2.Stats().Consumed)
}

func TestAttachPersonaValidatesAgainstLibrary(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	writeWorkspaceFile(t, d.cfg.Workspace, filepath.Join(".claude", "agents", "code-reviewer.md"),
		"---\nname: Code Reviewer\ntools: Read, Grep\n---\n\nReview diffs before anything merges.\n")

	s, err := d.AddSession(d.cfg.Workspace)
	require.NoError(t, err)

	require.NoError(t, d.AttachPersonaToSession(s.ID, "code-reviewer"))
	got, err := d.Session(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Persona)
	assert.Equal(t, "code-reviewer", got.Persona.ID)
	assert.Equal(t, "Code Reviewer", got.Persona.Name)

	err = d.AttachPersonaToSession(s.ID, "ghost")
	assert.ErrorIs(t, err, persona.ErrNotFound)

	require.NoError(t, d.AttachPersonaToSession(s.ID, ""))
	got, err = d.Session(s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Persona)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	ch, cancel := d.Subscribe()
	defer cancel()

	_, err := d.Equip("memory-project", helmSlot())
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.NotNil(t, snap.Equipment.Helm)
		assert.Equal(t, 500, snap.Stats.Consumed)
		assert.Len(t, snap.Capabilities, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after mutation")
	}
}

func TestSubscribeCoalescesWhenSlow(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	ch, cancel := d.Subscribe()
	defer cancel()

	// Two mutations without a read in between: only the latest state
	// must be observable.
	_, err := d.Equip("memory-project", helmSlot())
	require.NoError(t, err)
	_, err = d.Equip("hook-project-posttooluse-0", hookSlot(0))
	require.NoError(t, err)

	var last Snapshot
	for {
		select {
		case snap := <-ch:
			last = snap
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
	require.NotNil(t, last.Pending, "latest snapshot carries the deferred allocation")
}

func TestCancelSubscriptionTwice(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	d, _ := newTestDeck(t)

	_, cancel := d.Subscribe()
	cancel()
	cancel()
}
