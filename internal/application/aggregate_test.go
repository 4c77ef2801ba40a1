package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

// gatedStore holds every transaction until release is closed or the
// transaction's context is done.
type gatedStore struct {
	ports.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Store.WithTx(ctx, fn)
}

func TestAggregate_CancelledCallerDoesNotFailOthers(t *testing.T) {
	h := newHarness(t)
	h.addSubmission(t, "sub-1", domain.StatusSubmitted, 1)
	for _, j := range []string{"j1", "j2", "j3"} {
		h.scoreStep1(t, j, "sub-1", 8)
	}

	gated := &gatedStore{Store: h.store, entered: make(chan struct{}), release: make(chan struct{})}
	eng, err := NewEngine(gated)
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := eng.Aggregate(ctxA, "sub-1", h.steps.Step1)
		errA <- err
	}()
	<-gated.entered

	type result struct {
		agg domain.AggregateResult
		err error
	}
	resB := make(chan result, 1)
	go func() {
		agg, err := eng.Aggregate(context.Background(), "sub-1", h.steps.Step1)
		resB <- result{agg, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gated.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, domain.AggregatePassed, r.agg.Status)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
}
