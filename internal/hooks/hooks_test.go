package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/plan"
)

func TestRegistryRunsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Register(SystemNetwork, "first", func(ctx context.Context, wp *plan.Plan) error {
		order = append(order, "first")
		return nil
	})
	r.Register(SystemNetwork, "second", func(ctx context.Context, wp *plan.Plan) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, r.Run(context.Background(), SystemNetwork, plan.New()))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRegistryStopsAtFirstError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	var ran bool
	r.Register(Deployment, "fails", func(ctx context.Context, wp *plan.Plan) error { return boom })
	r.Register(Deployment, "never", func(ctx context.Context, wp *plan.Plan) error { ran = true; return nil })

	err := r.Run(context.Background(), Deployment, plan.New())
	require.Error(t, err)
	assert.False(t, ran)
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(FinalNetwork, "dup", func(ctx context.Context, wp *plan.Plan) error { return nil })
	assert.Panics(t, func() {
		r.Register(FinalNetwork, "dup", func(ctx context.Context, wp *plan.Plan) error { return nil })
	})
}

func TestRunOnStageWithNoHooksIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Run(context.Background(), Instantiation, plan.New()))
	assert.Empty(t, r.Names(Instantiation))
}
