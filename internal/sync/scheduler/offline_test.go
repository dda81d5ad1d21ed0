package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyvram23/Utility-Box/internal/connectivity"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/tools"
)

// =====================================================
// Offline round trip over SQLite
// =====================================================

// TestOffline_survivesRestart records edits while offline, restarts the
// process over the same database and verifies they are delivered in order
// once connectivity returns.
func TestOffline_survivesRestart(t *testing.T) {
	dataDir := t.TempDir()

	// First run: log in, lose the connection, keep editing.
	st, err := store.OpenSQLite(dataDir)
	require.NoError(t, err)

	monitor := connectivity.NewMonitor(true)
	transport := &recordingTransport{}
	o := New(Deps{
		Store:     st,
		Monitor:   monitor,
		Tools:     tools.NewRegistry(st),
		Notifier:  &notify.Recorder{},
		Transport: transport,
	}, testConfig())

	auth, err := o.Authenticate(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)

	monitor.SetOnline(false)

	reg := tools.NewRegistry(st)
	edits := []struct {
		kind models.Kind
		data string
	}{
		{models.KindNotes, `[{"id":"n1","text":"draft"}]`},
		{models.KindTasks, `[{"title":"buy milk"}]`},
		{models.KindPostits, `[{"color":"yellow"}]`},
	}
	for _, e := range edits {
		require.NoError(t, reg.Write(e.kind, json.RawMessage(e.data)))
		_, err := o.Enqueue(e.kind, json.RawMessage(e.data))
		require.NoError(t, err)
	}

	o.Stop()
	require.NoError(t, st.Close())
	assert.Empty(t, transport.queueCalls())

	// Second run: everything comes back from disk.
	st, err = store.OpenSQLite(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	monitor = connectivity.NewMonitor(false)
	transport = &recordingTransport{}
	notes := &notify.Recorder{}
	o = New(Deps{
		Store:     st,
		Monitor:   monitor,
		Tools:     tools.NewRegistry(st),
		Notifier:  notes,
		Transport: transport,
	}, testConfig())
	t.Cleanup(o.Stop)

	stats := o.Stats()
	assert.Equal(t, auth.User.ID, stats.UserID)
	assert.Equal(t, 3, stats.PendingCount)

	data, err := tools.NewRegistry(st).Read(models.KindTasks)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"buy milk"}]`, string(data))

	o.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, transport.Calls(), "nothing is sent while offline")

	o.SetOnline(true)

	require.Eventually(t, func() bool {
		return len(transport.queueCalls()) == 3 && o.Stats().PendingCount == 0
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.Kind{models.KindNotes, models.KindTasks, models.KindPostits}, transport.queueCalls())

	raw, err := st.Get(store.KeyQueue)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	require.Eventually(t, func() bool { return o.Stats().LastSync != nil }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, notes.Count(models.EventConnectivityOnline))
	assert.Equal(t, 1, notes.Count(models.EventQueuePending))
}
