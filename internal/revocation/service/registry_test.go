package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rlregistry/internal/revocation/models"
	"rlregistry/internal/revocation/service"
	"rlregistry/internal/revocation/store"
	dErrors "rlregistry/pkg/domain-errors"
	"rlregistry/pkg/platform/audit/publisher"
	auditmemory "rlregistry/pkg/platform/audit/store/memory"
	"rlregistry/pkg/testutil"
)

// Registry behaviour end to end against the in-memory store.

func newRegistry() *service.Service {
	return service.New(store.NewInMemory())
}

func TestRegistry_FreshList(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()

	require.NoError(t, svc.Register(ctx, "my.list"))

	encoded, err := svc.GetEncodedList(ctx, "my.list")
	require.NoError(t, err)
	assert.Len(t, encoded, 8192)
	assert.Equal(t, strings.Repeat("0", 8192), encoded)

	for _, i := range []int{0, 1, 16383, 32767} {
		set, err := svc.IsSet(ctx, "my.list", i)
		require.NoError(t, err)
		assert.False(t, set, "index %d", i)
	}
}

func TestRegistry_AcceptanceScenario(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()

	testutil.Given(t, "a registered list my.list", func(t *testing.T) {
		require.NoError(t, svc.Register(ctx, "my.list"))

		testutil.When(t, "index 1 is set", func(t *testing.T) {
			require.NoError(t, svc.SetBits(ctx, "my.list", []int{1}, nil))

			testutil.Then(t, "only index 1 reads as set", func(t *testing.T) {
				set, err := svc.IsSet(ctx, "my.list", 1)
				require.NoError(t, err)
				assert.True(t, set)

				set, err = svc.IsSet(ctx, "my.list", 0)
				require.NoError(t, err)
				assert.False(t, set)
			})

			testutil.Then(t, "the first byte encodes as 02", func(t *testing.T) {
				encoded, err := svc.GetEncodedList(ctx, "my.list")
				require.NoError(t, err)
				assert.Equal(t, "02"+strings.Repeat("0", 8190), encoded)
			})
		})
	})
}

func TestRegistry_DuplicateRegisterKeepsState(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()

	require.NoError(t, svc.Register(ctx, "dup"))
	require.NoError(t, svc.SetBits(ctx, "dup", []int{5, 100}, nil))
	before, err := svc.GetEncodedList(ctx, "dup")
	require.NoError(t, err)

	err = svc.Register(ctx, "dup")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	after, err := svc.GetEncodedList(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistry_SetClearRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "rt"))

	for _, i := range []int{0, 7, 8, 255, 4096, 32767} {
		require.NoError(t, svc.SetBits(ctx, "rt", []int{i}, nil))
		set, err := svc.IsSet(ctx, "rt", i)
		require.NoError(t, err)
		assert.True(t, set, "index %d after set", i)

		require.NoError(t, svc.SetBits(ctx, "rt", nil, []int{i}))
		set, err = svc.IsSet(ctx, "rt", i)
		require.NoError(t, err)
		assert.False(t, set, "index %d after clear", i)
	}

	encoded, err := svc.GetEncodedList(ctx, "rt")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", 8192), encoded)
}

func TestRegistry_ClearWins(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "cw"))
	require.NoError(t, svc.Revoke(ctx, "cw", 7))

	require.NoError(t, svc.SetBits(ctx, "cw", []int{7}, []int{7}))

	set, err := svc.IsSet(ctx, "cw", 7)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestRegistry_DuplicateIndicesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "dups"))

	require.NoError(t, svc.SetBits(ctx, "dups", []int{3, 3, 3, 9}, []int{12, 12}))

	n, err := svc.RevokedCount(ctx, "dups")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegistry_OutOfRangeLeavesListUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "oor"))
	require.NoError(t, svc.SetBits(ctx, "oor", []int{2}, nil))
	before, err := svc.GetEncodedList(ctx, "oor")
	require.NoError(t, err)

	err = svc.SetBits(ctx, "oor", []int{1, 32768}, []int{2})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfRange))

	_, err = svc.IsSet(ctx, "oor", 32768)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfRange))
	_, err = svc.IsSet(ctx, "oor", -1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfRange))

	after, err := svc.GetEncodedList(ctx, "oor")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistry_UnknownList(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()

	err := svc.SetBits(ctx, "nonexistent", []int{1}, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.IsSet(ctx, "nonexistent", 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.GetEncodedList(ctx, "nonexistent")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.ReplaceList(ctx, "nonexistent", strings.Repeat("0", 8192))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegistry_ReplaceList(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "rep"))

	encoded := "80" + strings.Repeat("0", 8188) + "01"
	require.NoError(t, svc.ReplaceList(ctx, "rep", encoded))

	set, err := svc.IsSet(ctx, "rep", 7)
	require.NoError(t, err)
	assert.True(t, set)
	set, err = svc.IsSet(ctx, "rep", 32760)
	require.NoError(t, err)
	assert.True(t, set)

	got, err := svc.GetEncodedList(ctx, "rep")
	require.NoError(t, err)
	assert.Equal(t, encoded, got)

	err = svc.ReplaceList(ctx, "rep", "00")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	got, err = svc.GetEncodedList(ctx, "rep")
	require.NoError(t, err)
	assert.Equal(t, encoded, got)
}

func TestRegistry_ListsAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "a"))
	require.NoError(t, svc.Register(ctx, "b"))

	require.NoError(t, svc.Revoke(ctx, "a", 42))

	set, err := svc.IsSet(ctx, "b", 42)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestRegistry_ConcurrentRegisterOneWinner(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()

	const callers = 32
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Register(ctx, "race")
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(callers-1), conflicts.Load())
}

// TestRegistry_BatchAtomicity runs a batch setting indices {0..99} against readers
// polling the encoding; every observation is all-clear or all-set.
func TestRegistry_BatchAtomicity(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry()
	require.NoError(t, svc.Register(ctx, "atomic"))

	indices := make([]int, 100)
	for i := range indices {
		indices[i] = i
	}
	allClear := strings.Repeat("0", 8192)
	allSet := strings.Repeat("f", 24) + "0f" + strings.Repeat("0", 8192-26)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var torn atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				enc, err := svc.GetEncodedList(ctx, "atomic")
				if err != nil || (enc != allClear && enc != allSet) {
					torn.Add(1)
				}
			}
		}()
	}

	for i := range 200 {
		if i%2 == 0 {
			require.NoError(t, svc.SetBits(ctx, "atomic", indices, nil))
		} else {
			require.NoError(t, svc.SetBits(ctx, "atomic", nil, indices))
		}
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, torn.Load(), "a reader observed a partial batch")
}

func TestRegistry_AuditTrail(t *testing.T) {
	ctx := context.Background()
	events := auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(events)
	defer pub.Close()
	svc := service.New(store.NewInMemory(), service.WithAuditPublisher(pub))

	require.NoError(t, svc.Register(ctx, "audited"))
	require.NoError(t, svc.SetBits(ctx, "audited", []int{1, 2}, []int{2, 3}))
	require.NoError(t, svc.ReplaceList(ctx, "audited", strings.Repeat("0", 8192)))
	// Failed operations leave no trail.
	_ = svc.SetBits(ctx, "audited", []int{models.Capacity}, nil)

	trail, err := events.ListByList(ctx, "audited")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "revocation_list_registered", trail[0].Action)
	assert.Equal(t, "revocation_list_bits_updated", trail[1].Action)
	assert.Equal(t, 1, trail[1].SetCount)
	assert.Equal(t, 2, trail[1].ClearCount)
	assert.Equal(t, "revocation_list_replaced", trail[2].Action)
}
