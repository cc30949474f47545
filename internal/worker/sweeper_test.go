package worker

import (
	"context"
	"testing"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ n int }

func (s *countingSweeper) Sweep() int { return s.n }

func TestSweepOnceSumsTargets(t *testing.T) {
	w := NewSweepWorker(map[string]Sweeper{
		"a": &countingSweeper{n: 2},
		"b": &countingSweeper{n: 0},
		"c": &countingSweeper{n: 3},
	}, nil, time.Minute)
	assert.Equal(t, 5, w.SweepOnce())
}

func TestSweepEvictsExpiredRevocations(t *testing.T) {
	revoked := repository.NewMemoryRevocationList()
	ctx := context.Background()
	require.NoError(t, revoked.Revoke(ctx, "short", time.Millisecond))
	require.NoError(t, revoked.Revoke(ctx, "long", time.Hour))
	time.Sleep(5 * time.Millisecond)

	w := NewSweepWorker(map[string]Sweeper{"sessions": revoked}, nil, time.Minute)
	assert.Equal(t, 1, w.SweepOnce())

	ok, err := revoked.IsRevoked(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}
