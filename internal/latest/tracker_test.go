package latest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginSupersedesPrevious(t *testing.T) {
	tr := NewTracker()

	ctx1, tok1 := tr.Begin(context.Background())
	assert.True(t, tr.IsCurrent(tok1))

	ctx2, tok2 := tr.Begin(context.Background())
	assert.NotEqual(t, tok1, tok2)
	assert.False(t, tr.IsCurrent(tok1))
	assert.True(t, tr.IsCurrent(tok2))

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
}

func TestCommitDropsStaleResults(t *testing.T) {
	tr := NewTracker()
	_, stale := tr.Begin(context.Background())
	_, fresh := tr.Begin(context.Background())

	applied := ""
	assert.False(t, tr.Commit(stale, func() { applied = "stale" }))
	assert.True(t, tr.Commit(fresh, func() { applied = "fresh" }))
	assert.Equal(t, "fresh", applied)
	assert.False(t, tr.Commit("", func() { applied = "empty" }))
}

func TestStopCancelsCurrent(t *testing.T) {
	tr := NewTracker()
	ctx, tok := tr.Begin(context.Background())

	tr.Stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, tr.IsCurrent(tok))
	assert.NotPanics(t, tr.Stop)
}

func TestConcurrentBeginLeavesOneCurrent(t *testing.T) {
	tr := NewTracker()
	tokens := make([]Token, 50)

	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, tokens[i] = tr.Begin(context.Background())
		}(i)
	}
	wg.Wait()

	current := 0
	for _, tok := range tokens {
		if tr.IsCurrent(tok) {
			current++
		}
	}
	assert.Equal(t, 1, current)
}
