package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFakeClock_Now(t *testing.T) {
	c := NewFakeClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
}

func TestFakeClock_AfterFiresOnlyWhenDue(t *testing.T) {
	c := NewFakeClock(epoch)
	ch := c.After(30 * time.Minute)

	c.Advance(29 * time.Minute)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Minute)
	select {
	case at := <-ch:
		assert.Equal(t, epoch.Add(30*time.Minute), at)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_NonPositiveFiresImmediately(t *testing.T) {
	c := NewFakeClock(epoch)

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration must fire immediately")
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_BlockUntil(t *testing.T) {
	c := NewFakeClock(epoch)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-c.After(time.Second)
	}()

	require.NoError(t, c.BlockUntil(ctx, 1))
	c.Advance(time.Second)
	wg.Wait()
}

func TestFakeClock_BlockUntilHonoursContext(t *testing.T) {
	c := NewFakeClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.BlockUntil(ctx, 1), context.Canceled)
}

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("")
	assert.Equal(t, "task-1", g.Generate())
	assert.Equal(t, "task-2", g.Generate())

	h := NewSequenceIDs("login")
	assert.Equal(t, "login-1", h.Generate())
}
