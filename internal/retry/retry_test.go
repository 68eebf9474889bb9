package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meterbridge/internal/cloud"
)

// fastPolicy keeps retries near-instant so failure paths stay quick.
func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Timeout:     time.Second,
		Delay:       time.Millisecond,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastPolicy(), "op",
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Fatalf("got %q after %d calls, want \"ok\" after 1", got, calls)
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastPolicy(), "op",
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, &cloud.APIError{Op: "op", Err: errors.New("flaky")}
			}
			return 42, nil
		}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	cause := errors.New("still down")
	_, err := Do(context.Background(), fastPolicy(), "meters",
		func(ctx context.Context) ([]string, error) {
			calls++
			return nil, cause
		}, nil)

	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !cloud.IsAPIError(err) {
		t.Fatalf("expected *cloud.APIError, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not preserved in %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("attempt count missing from %v", err)
	}
}

func TestDo_AuthErrorNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastPolicy(), "op",
		func(ctx context.Context) (string, error) {
			calls++
			return "", &cloud.AuthError{Op: "op", Err: errors.New("invalid_grant")}
		}, nil)

	if calls != 1 {
		t.Fatalf("auth failure must not be retried; got %d calls", calls)
	}
	if !cloud.IsAuthError(err) {
		t.Fatalf("expected auth error, got %T: %v", err, err)
	}
}

func TestDo_EmptyResultIsTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastPolicy(), "readings",
		func(ctx context.Context) (map[string]any, error) {
			calls++
			return map[string]any{}, nil
		},
		func(m map[string]any) bool { return len(m) > 0 })

	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !cloud.IsAPIError(err) {
		t.Fatalf("expected *cloud.APIError, got %T: %v", err, err)
	}
	if !errors.Is(err, errEmptyResponse) {
		t.Fatalf("expected empty-response cause in %v", err)
	}
}

func TestDo_NilCheckAcceptsEmpty(t *testing.T) {
	t.Parallel()

	// A nil nonEmpty check means a valid empty result is a success; the
	// caller decides what emptiness means.
	calls := 0
	got, err := Do(context.Background(), fastPolicy(), "meters",
		func(ctx context.Context) ([]int, error) {
			calls++
			return []int{}, nil
		}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 || len(got) != 0 {
		t.Fatalf("empty slice should pass through on the first call; calls=%d got=%v", calls, got)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, fastPolicy(), "op",
		func(ctx context.Context) (string, error) {
			return "", errors.New("should not matter")
		}, nil)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if cloud.IsAPIError(err) {
		t.Fatalf("cancellation must not be dressed up as an API error: %v", err)
	}
}

func TestNewPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := NewPolicy(nil)
	if p.MaxAttempts != DefaultMaxAttempts || p.Timeout != DefaultTimeout || p.Delay != DefaultDelay {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestGrowingDelay(t *testing.T) {
	t.Parallel()

	g := &growingDelay{base: 100 * time.Millisecond}
	g.Reset()

	first := g.NextBackOff()
	second := g.NextBackOff()
	third := g.NextBackOff()

	if first != 100*time.Millisecond {
		t.Fatalf("first delay = %v, want base", first)
	}
	// Each step grows by base plus up to base of jitter.
	if second < 200*time.Millisecond || second > 300*time.Millisecond {
		t.Fatalf("second delay %v outside [200ms, 300ms]", second)
	}
	if third <= second {
		t.Fatalf("delays must grow: %v then %v", second, third)
	}
}
