package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "rlregistry/pkg/platform/audit"
	"rlregistry/pkg/platform/audit/store/memory"
	"rlregistry/pkg/platform/circuit"
)

type flakySink struct {
	mu     sync.Mutex
	fail   bool
	events []audit.Event
}

func (f *flakySink) Append(_ context.Context, event audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unreachable")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *flakySink) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakySink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func event(listID string) audit.Event {
	return audit.Event{Action: string(audit.EventListBitsUpdated), ListID: listID}
}

func TestSink(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy primary receives every event", func(t *testing.T) {
		primary := &flakySink{}
		fallback := memory.NewInMemoryStore()
		s := New(primary, fallback)

		require.NoError(t, s.Append(ctx, event("a")))
		require.NoError(t, s.Append(ctx, event("b")))

		assert.Equal(t, 2, primary.count())
		all, _ := fallback.ListAll(ctx)
		assert.Empty(t, all)
	})

	t.Run("failed primary writes go to fallback and trip the breaker", func(t *testing.T) {
		primary := &flakySink{fail: true}
		fallback := memory.NewInMemoryStore()
		b := circuit.New("test", circuit.WithFailureThreshold(2))
		s := New(primary, fallback, WithBreaker(b), WithCooldown(time.Hour))

		for range 3 {
			require.NoError(t, s.Append(ctx, event("a")))
		}

		assert.True(t, b.IsOpen())
		got, _ := fallback.ListByList(ctx, "a")
		assert.Len(t, got, 3)
	})

	t.Run("probe after cooldown closes the circuit", func(t *testing.T) {
		primary := &flakySink{fail: true}
		fallback := memory.NewInMemoryStore()
		b := circuit.New("test", circuit.WithFailureThreshold(1))
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s := New(primary, fallback, WithBreaker(b), WithCooldown(time.Minute))
		s.now = func() time.Time { return now }

		require.NoError(t, s.Append(ctx, event("a")))
		require.True(t, b.IsOpen())

		primary.setFailing(false)
		require.NoError(t, s.Append(ctx, event("a")))
		assert.Equal(t, 0, primary.count(), "primary is not probed inside the cooldown")

		now = now.Add(2 * time.Minute)
		require.NoError(t, s.Append(ctx, event("a")))
		assert.Equal(t, 1, primary.count())
		assert.False(t, b.IsOpen())

		got, _ := fallback.ListByList(ctx, "a")
		assert.Len(t, got, 2)
	})
}
