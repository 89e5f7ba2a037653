package saga

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/metrics"
	"github.com/roach88/opsdesk/internal/store"
	"github.com/roach88/opsdesk/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	actTrigger action.Type = "test/TRIGGER"
	actResult  action.Type = "test/RESULT"
)

// results collects every test/RESULT payload in order.
func results(state any, a action.Action) any {
	cur, _ := state.([]string)
	if a.Type != actResult {
		if cur == nil {
			return []string{}
		}
		return cur
	}
	s, _ := a.Payload.(string)
	next := append(append([]string(nil), cur...), s)
	return next
}

func newRunner(t *testing.T, opts ...Option) (*Runner, *store.Store) {
	t.Helper()
	m := store.NewReducerManager(map[string]store.Reducer{"results": results})
	st := store.New(m.Reduce)
	opts = append([]Option{WithIDGenerator(testutil.NewSequenceIDs(""))}, opts...)
	r := NewRunner(st, opts...)
	t.Cleanup(r.Stop)
	return r, st
}

func settle(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Settle(ctx))
}

func resultsOf(st *store.Store) []string {
	v, _ := st.State().Slice("results").([]string)
	return v
}

func TestTakeLatest_CancelledTaskCannotPut(t *testing.T) {
	r, st := newRunner(t)

	release := map[string]chan struct{}{"1": make(chan struct{}), "2": make(chan struct{})}
	started := make(chan string, 2)

	r.TakeLatest(actTrigger, "latest", func(ctx context.Context, eff *Effects, trig action.Action) error {
		id := trig.Payload.(string)
		started <- id
		<-release[id]
		eff.Put(action.New(actResult, id))
		return nil
	})

	st.Dispatch(action.New(actTrigger, "1"))
	assert.Equal(t, "1", <-started)
	st.Dispatch(action.New(actTrigger, "2"))
	assert.Equal(t, "2", <-started)

	close(release["1"])
	close(release["2"])
	settle(t, r)

	assert.Equal(t, []string{"2"}, resultsOf(st), "only the latest task may commit")
}

func TestTakeLatest_CancelsContext(t *testing.T) {
	r, st := newRunner(t)

	cancelled := make(chan string, 1)
	started := make(chan struct{}, 2)
	r.TakeLatest(actTrigger, "latest", func(ctx context.Context, eff *Effects, trig action.Action) error {
		started <- struct{}{}
		if trig.Payload == "first" {
			<-ctx.Done()
			cancelled <- eff.Task().ID
			return ctx.Err()
		}
		return nil
	})

	st.Dispatch(action.New(actTrigger, "first"))
	<-started
	st.Dispatch(action.New(actTrigger, "second"))

	select {
	case id := <-cancelled:
		assert.Equal(t, "task-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("first task was not cancelled")
	}
	settle(t, r)
}

func TestTakeEvery_RunsAllOccurrences(t *testing.T) {
	r, st := newRunner(t)

	r.TakeEvery(actTrigger, "every", func(ctx context.Context, eff *Effects, trig action.Action) error {
		eff.Put(action.New(actResult, trig.Payload.(string)))
		return nil
	})

	st.Dispatch(action.New(actTrigger, "a"))
	settle(t, r)
	st.Dispatch(action.New(actTrigger, "b"))
	settle(t, r)

	assert.Equal(t, []string{"a", "b"}, resultsOf(st))
}

func TestPanicDoesNotStopWatcher(t *testing.T) {
	c := metrics.New()
	r, st := newRunner(t, WithMetrics(c))

	var runs atomic.Int32
	r.TakeLatest(actTrigger, "fragile", func(ctx context.Context, eff *Effects, trig action.Action) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		eff.Put(action.New(actResult, "recovered"))
		return nil
	})

	st.Dispatch(action.New(actTrigger, nil))
	settle(t, r)
	st.Dispatch(action.New(actTrigger, nil))
	settle(t, r)

	assert.Equal(t, []string{"recovered"}, resultsOf(st))
}

func TestFailedTaskReportsError(t *testing.T) {
	r, st := newRunner(t)

	errBoom := errors.New("collaborator down")
	var task atomic.Pointer[Task]
	r.TakeEvery(actTrigger, "failing", func(ctx context.Context, eff *Effects, trig action.Action) error {
		task.Store(eff.Task())
		return errBoom
	})

	st.Dispatch(action.Of(actTrigger))
	settle(t, r)

	require.NotNil(t, task.Load())
	assert.ErrorIs(t, task.Load().Err(), errBoom)
	assert.Equal(t, "failing", task.Load().Watcher)
}

func TestPutStampsTaskID(t *testing.T) {
	r, st := newRunner(t)

	var seen []action.Action
	st.AddObserver(store.ObserverFunc(func(a action.Action, _ *store.State) {
		if a.Type == actResult {
			seen = append(seen, a)
		}
	}))
	r.TakeEvery(actTrigger, "stamp", func(ctx context.Context, eff *Effects, trig action.Action) error {
		eff.Put(action.New(actResult, "x"))
		return nil
	})

	st.Dispatch(action.Of(actTrigger))
	settle(t, r)

	require.Len(t, seen, 1)
	assert.Equal(t, "task-1", seen[0].TaskID)
}

func TestDuplicateWatcherNameRefused(t *testing.T) {
	r, _ := newRunner(t)
	noop := func(ctx context.Context, eff *Effects, trig action.Action) error { return nil }

	assert.True(t, r.TakeLatest(actTrigger, "w", noop))
	assert.False(t, r.TakeEvery(actResult, "w", noop))
	assert.False(t, r.TakeLatest(actTrigger, "", noop))
	assert.False(t, r.TakeLatest(actTrigger, "nil", nil))
	assert.True(t, r.HasWatcher("w"))
}

func TestSelectReadsLatestState(t *testing.T) {
	r, st := newRunner(t)
	st.Dispatch(action.New(actResult, "seed"))

	got := make(chan []string, 1)
	r.TakeEvery(actTrigger, "reader", func(ctx context.Context, eff *Effects, trig action.Action) error {
		got <- Select(eff, func(s *store.State) []string {
			v, _ := s.Slice("results").([]string)
			return v
		})
		return nil
	})

	st.Dispatch(action.Of(actTrigger))
	settle(t, r)
	assert.Equal(t, []string{"seed"}, <-got)
}

func TestDelayUsesClock(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r, st := newRunner(t, WithClock(clock))

	r.TakeLatest(actTrigger, "delayed", func(ctx context.Context, eff *Effects, trig action.Action) error {
		if err := eff.Delay(30 * time.Minute); err != nil {
			return err
		}
		eff.Put(action.New(actResult, "expired"))
		return nil
	})

	st.Dispatch(action.Of(actTrigger))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntil(ctx, 1))
	assert.Empty(t, resultsOf(st))

	clock.Advance(30 * time.Minute)
	settle(t, r)
	assert.Equal(t, []string{"expired"}, resultsOf(st))
}

func TestFork(t *testing.T) {
	r, st := newRunner(t)

	task := r.Fork("background", func(ctx context.Context, eff *Effects) error {
		eff.Put(action.New(actResult, "forked"))
		return nil
	})
	require.NotNil(t, task)
	<-task.Done()
	settle(t, r)

	assert.Equal(t, []string{"forked"}, resultsOf(st))
}

func TestStopCancelsRunningTasks(t *testing.T) {
	m := store.NewReducerManager(map[string]store.Reducer{"results": results})
	st := store.New(m.Reduce)
	r := NewRunner(st)

	started := make(chan struct{})
	r.TakeLatest(actTrigger, "blocking", func(ctx context.Context, eff *Effects, trig action.Action) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	st.Dispatch(action.Of(actTrigger))
	<-started
	assert.Equal(t, 1, r.Active())

	r.Stop()
	assert.Equal(t, 0, r.Active())

	st.Dispatch(action.Of(actTrigger))
	assert.Equal(t, 0, r.Active(), "a stopped runner ignores actions")
	assert.Nil(t, r.Fork("late", func(ctx context.Context, eff *Effects) error { return nil }))
}

func TestSettleHonoursContext(t *testing.T) {
	r, st := newRunner(t)

	r.TakeLatest(actTrigger, "blocking", func(ctx context.Context, eff *Effects, trig action.Action) error {
		<-ctx.Done()
		return nil
	})
	st.Dispatch(action.Of(actTrigger))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Settle(ctx), context.DeadlineExceeded)
}

func TestRemoveWatcher(t *testing.T) {
	r, st := newRunner(t)

	started := make(chan struct{}, 1)
	var runs atomic.Int32
	require.True(t, r.TakeLatest(actTrigger, "removable", func(ctx context.Context, _ *Effects, _ action.Action) error {
		runs.Add(1)
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}))

	st.Dispatch(action.Of(actTrigger))
	<-started

	assert.True(t, r.Remove("removable"))
	settle(t, r)
	assert.False(t, r.HasWatcher("removable"))
	assert.False(t, r.Remove("removable"))

	st.Dispatch(action.Of(actTrigger))
	settle(t, r)
	assert.Equal(t, int32(1), runs.Load())

	// The name is free again.
	assert.True(t, r.TakeEvery(actTrigger, "removable", func(context.Context, *Effects, action.Action) error { return nil }))
}
