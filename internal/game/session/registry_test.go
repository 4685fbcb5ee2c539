package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

var spawn = spatial.Position{X: 400, Y: 300}

func TestRegistry_AddAtSpawn(t *testing.T) {
	r := NewRegistry(spawn)
	p, snap, err := r.Add("u1", nil)
	require.NoError(t, err)

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, spawn, p.Position())
	assert.False(t, p.LastUpdate.IsZero())
	assert.Equal(t, []Participant{p}, snap)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_AddAt(t *testing.T) {
	r := NewRegistry(spawn)
	p, _, err := r.AddAt("u1", spatial.Position{X: 10, Y: -5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.X)
	assert.Equal(t, -5.0, p.Y)
}

func TestRegistry_AddEmptyID(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, err := r.Add("", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, err := r.AddAt("u1", spatial.Position{X: 1, Y: 1}, nil)
	require.NoError(t, err)

	_, _, err = r.AddAt("u1", spatial.Position{X: 9, Y: 9}, nil)
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Contains(t, err.Error(), "u1")

	p, ok := r.Get("u1")
	require.True(t, ok)
	assert.Equal(t, spatial.Position{X: 1, Y: 1}, p.Position(), "duplicate add must not touch the live entry")
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_SnapshotIncludesNewParticipantOnce(t *testing.T) {
	r := NewRegistry(spawn)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("u%d", i)
		_, snap, err := r.Add(id, nil)
		require.NoError(t, err)
		assert.Len(t, snap, i+1)
		count := 0
		for _, p := range snap {
			if p.ID == id {
				count++
			}
		}
		assert.Equal(t, 1, count)
		assert.Equal(t, id, snap[len(snap)-1].ID, "snapshot is in join order")
	}
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry(spawn)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	_, _, err := r.Add("u1", nil)
	require.NoError(t, err)

	r.now = func() time.Time { return base.Add(time.Second) }
	assert.True(t, r.Update("u1", spatial.Position{X: 5, Y: 6}))

	p, ok := r.Get("u1")
	require.True(t, ok)
	assert.Equal(t, spatial.Position{X: 5, Y: 6}, p.Position())
	assert.Equal(t, base.Add(time.Second), p.LastUpdate)
}

func TestRegistry_UpdateMissingIsNoOp(t *testing.T) {
	r := NewRegistry(spawn)
	assert.False(t, r.Update("ghost", spatial.Position{X: 1, Y: 1}))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_UpdateIdempotent(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, _ = r.Add("u1", nil)
	pos := spatial.Position{X: 42, Y: 24}
	assert.True(t, r.Update("u1", pos))
	assert.True(t, r.Update("u1", pos))
	p, _ := r.Get("u1")
	assert.Equal(t, pos, p.Position())
}

func TestRegistry_RemoveClosesOutbox(t *testing.T) {
	r := NewRegistry(spawn)
	o := NewOutbox("u1", 4)
	_, _, err := r.Add("u1", o)
	require.NoError(t, err)

	p, ok := r.Remove("u1")
	require.True(t, ok)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, o.IsClosed())
	assert.Equal(t, 0, r.Count())

	_, ok = r.Outbox("u1")
	assert.False(t, ok)
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, _ = r.Add("u1", nil)
	_, ok := r.Remove("u1")
	assert.True(t, ok)
	_, ok = r.Remove("u1")
	assert.False(t, ok)
	_, ok = r.Remove("never")
	assert.False(t, ok)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, _ = r.Add("u1", nil)

	snap := r.Snapshot()
	snap[0].X = -999
	r.Update("u1", spatial.Position{X: 1, Y: 2})

	assert.Equal(t, -999.0, snap[0].X)
	p, _ := r.Get("u1")
	assert.Equal(t, 1.0, p.X)
}

func TestRegistry_Outboxes(t *testing.T) {
	r := NewRegistry(spawn)
	o1 := NewOutbox("u1", 4)
	o2 := NewOutbox("u2", 4)
	_, _, _ = r.Add("u1", o1)
	_, _, _ = r.Add("u2", o2)
	_, _, _ = r.Add("u3", nil)

	all := r.Outboxes()
	assert.Len(t, all, 2)
	assert.Same(t, o1, all["u1"])

	others := r.Outboxes("u1")
	assert.Len(t, others, 1)
	assert.Same(t, o2, others["u2"])

	got, ok := r.Outbox("u2")
	require.True(t, ok)
	assert.Same(t, o2, got)
	_, ok = r.Outbox("u3")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := NewRegistry(spawn)
	const n = 100
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _, _ = r.Add(fmt.Sprintf("u%d", i), NewOutbox(fmt.Sprintf("u%d", i), 1))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, r.Count())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = r.Remove(fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_ConcurrentMovesDoNotCorruptEachOther(t *testing.T) {
	r := NewRegistry(spawn)
	_, _, _ = r.Add("a", nil)
	_, _, _ = r.Add("b", nil)

	const rounds = 1000
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			r.Update("a", spatial.Position{X: float64(i), Y: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			r.Update("b", spatial.Position{X: float64(-i), Y: float64(-i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			for _, p := range r.Snapshot() {
				if p.X != p.Y {
					t.Errorf("torn read for %s: (%v,%v)", p.ID, p.X, p.Y)
					return
				}
			}
		}
	}()
	wg.Wait()

	a, _ := r.Get("a")
	b, _ := r.Get("b")
	assert.Equal(t, spatial.Position{X: rounds - 1, Y: rounds - 1}, a.Position())
	assert.Equal(t, spatial.Position{X: -(rounds - 1), Y: -(rounds - 1)}, b.Position())
}

// Property: the registry agrees with a simple map model under any operation sequence.
func TestPropertyRegistryMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry(spawn)
		model := make(map[string]spatial.Position)
		ids := []string{"a", "b", "c", "d"}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(t, "id")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				_, _, err := r.Add(id, nil)
				if _, live := model[id]; live {
					if err == nil {
						t.Fatalf("duplicate add of %s succeeded", id)
					}
				} else {
					if err != nil {
						t.Fatalf("add %s: %v", id, err)
					}
					model[id] = spawn
				}
			case 1:
				pos := spatial.Position{
					X: rapid.Float64Range(-1000, 1000).Draw(t, "x"),
					Y: rapid.Float64Range(-1000, 1000).Draw(t, "y"),
				}
				_, live := model[id]
				if got := r.Update(id, pos); got != live {
					t.Fatalf("update %s returned %v, live=%v", id, got, live)
				}
				if live {
					model[id] = pos
				}
			case 2:
				_, live := model[id]
				if _, got := r.Remove(id); got != live {
					t.Fatalf("remove %s returned %v, live=%v", id, got, live)
				}
				delete(model, id)
			}
		}

		snap := r.Snapshot()
		if len(snap) != len(model) {
			t.Fatalf("snapshot has %d entries, model %d", len(snap), len(model))
		}
		for _, p := range snap {
			if want, ok := model[p.ID]; !ok || want != p.Position() {
				t.Fatalf("participant %s at %v, model %v (present=%v)", p.ID, p.Position(), want, ok)
			}
		}
	})
}
