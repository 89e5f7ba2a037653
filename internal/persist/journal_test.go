package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/store"
)

type secret struct {
	User string `json:"user"`
	PIN  string `json:"pin"`
}

func (s secret) Redacted() any { return secret{User: s.User, PIN: "[redacted]"} }

func runJournal(t *testing.T, j *Journal) (stop func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()
	return func() {
		j.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("journal did not stop")
		}
	}
}

func TestJournal_RecordsActionsInSeqOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	m := metrics.New()
	j := NewJournal(db, WithRunID("run-1"), WithMetrics(m))
	st := newTestStore(store.WithObserver(j))
	stop := runJournal(t, j)

	st.Dispatch(action.New(typeNoteSet, "a"))
	st.Dispatch(action.Action{Type: typeDraftSet, Payload: "b", TaskID: "task-7"})
	st.Dispatch(action.New("pin/ENTER", secret{User: "amina", PIN: "1234"}))
	stop()

	entries, err := db.Entries(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, string(store.ActionInit), entries[0].Type)
	assert.Nil(t, entries[0].Payload)
	assert.Equal(t, string(typeNoteSet), entries[1].Type)
	assert.JSONEq(t, `"a"`, string(entries[1].Payload))
	assert.Equal(t, "task-7", entries[2].TaskID)
	assert.JSONEq(t, `{"user":"amina","pin":"[redacted]"}`, string(entries[3].Payload))

	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestJournal_RedactsConfiguredTypes(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	j := NewJournal(db, WithRunID("run-1"), WithRedactedTypes(typeNoteSet))
	st := newTestStore(store.WithObserver(j))
	stop := runJournal(t, j)

	st.Dispatch(action.New(typeNoteSet, "access-1-1"))
	st.Dispatch(action.New(typeDraftSet, "kept"))
	st.Dispatch(Rehydrate(Rehydrated{Key: "root", Slices: map[string]any{"note": "access-1-1", "draft": "x"}}))
	stop()

	entries, err := db.Entries(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.JSONEq(t, `"[redacted]"`, string(entries[1].Payload))
	assert.JSONEq(t, `"kept"`, string(entries[2].Payload))
	assert.JSONEq(t, `{"key":"root","slices":["draft","note"]}`, string(entries[3].Payload))
	for _, e := range entries {
		assert.NotContains(t, string(e.Payload), "access-1-1")
	}
}

func TestJournal_LimitReturnsTail(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)

	var batch []Entry
	for seq := int64(1); seq <= 5; seq++ {
		batch = append(batch, Entry{RunID: "r", Seq: seq, Type: "t"})
	}
	require.NoError(t, db.AppendEntries(ctx, batch))
	require.NoError(t, db.AppendEntries(ctx, batch[:2]))

	entries, err := db.Entries(ctx, "r", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(4), entries[0].Seq)
	assert.Equal(t, int64(5), entries[1].Seq)

	all, err := db.Entries(ctx, "r", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestJournal_LastRunID(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)

	id, err := db.LastRunID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, db.AppendEntries(ctx, []Entry{{RunID: "first", Seq: 1, Type: "t"}}))
	require.NoError(t, db.AppendEntries(ctx, []Entry{{RunID: "second", Seq: 1, Type: "t"}}))

	id, err = db.LastRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", id)
}

func TestJournal_DefaultRunIDIsUnique(t *testing.T) {
	a := NewJournal(NoopSink{})
	b := NewJournal(NoopSink{})
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}
