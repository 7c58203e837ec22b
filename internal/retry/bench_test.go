package retry

import (
	"context"
	"errors"
	"testing"
)

func BenchmarkBackoff_ImmediateSuccess(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return nil }) //nolint:errcheck
	}
}

func BenchmarkCircuitBreaker_OpenPath(b *testing.B) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1})
	cb.Execute(func() error { return errors.New("down") }) //nolint:errcheck
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(func() error { return nil }) //nolint:errcheck
	}
}
