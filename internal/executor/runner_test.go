package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pact-verifier/internal/types"
)

type fakeChecker struct {
	calls atomic.Int32
	fail  int
	delay func(i int) time.Duration
}

func (f *fakeChecker) Check(interaction *types.Interaction) ([]types.Violation, error) {
	f.calls.Add(1)
	if f.delay != nil {
		time.Sleep(f.delay(interaction.Index))
	}
	if interaction.Index == f.fail {
		return nil, errors.New("boom")
	}
	return []types.Violation{types.NewViolation(types.CodeRequestQueryUnknown, fmt.Sprint(interaction.Index))}, nil
}

func interactions(n int) []types.Interaction {
	out := make([]types.Interaction, n)
	for i := range out {
		out[i] = types.Interaction{Index: i, Description: fmt.Sprintf("interaction %d", i)}
	}
	return out
}

func TestRunKeepsInputOrder(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"sequential", Config{}},
		{"concurrent", Config{Concurrent: true, MaxWorkers: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &fakeChecker{fail: -1, delay: func(i int) time.Duration {
				return time.Duration(10-i) * time.Millisecond
			}}
			results, err := NewRunner(tt.config, checker, nil).Run(context.Background(), interactions(10))
			require.NoError(t, err)
			require.Len(t, results, 10)
			for i, r := range results {
				assert.Equal(t, i, r.Index)
				assert.Equal(t, fmt.Sprintf("interaction %d", i), r.Description)
				require.Len(t, r.Violations, 1)
				assert.Equal(t, fmt.Sprint(i), r.Violations[0].Message)
			}
		})
	}
}

func TestRunStopsOnError(t *testing.T) {
	checker := &fakeChecker{fail: 3}
	_, err := NewRunner(Config{}, checker, nil).Run(context.Background(), interactions(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interaction[3]")
	assert.LessOrEqual(t, checker.calls.Load(), int32(4))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := &fakeChecker{fail: -1}
	_, err := NewRunner(Config{Concurrent: true, MaxWorkers: 2}, checker, nil).Run(ctx, interactions(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, checker.calls.Load())
}

func TestRunEmpty(t *testing.T) {
	results, err := NewRunner(Config{}, &fakeChecker{fail: -1}, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
