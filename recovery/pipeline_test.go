package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/apikit/classify"
	"github.com/kbukum/apikit/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:      2,
		BaseDelay:       time.Millisecond,
		Strategy:        resilience.StrategyFixed,
		RetryableErrors: []string{"transient"},
	}
}

func TestPipeline_TokenRefreshAndReplay(t *testing.T) {
	refreshed := false
	p := New(Config{
		RefreshToken: func(ctx context.Context) error {
			refreshed = true
			return nil
		},
		Retry: fastRetry(),
	})

	replays := 0
	out := p.Recover(context.Background(), Request{
		Err:   errors.New("401"),
		Class: classify.Classification{Kind: classify.KindAuthentication},
		Action: func(ctx context.Context) ([]byte, error) {
			replays++
			return []byte("fresh"), nil
		},
	})

	if !refreshed {
		t.Error("expected token refresh")
	}
	if out.Status != StatusRecovered || out.Strategy != StrategyTokenRefresh {
		t.Errorf("unexpected outcome %+v", out)
	}
	if string(out.Data) != "fresh" || replays != 1 {
		t.Errorf("expected one replay returning fresh, got %d replays, %q", replays, out.Data)
	}
}

func TestPipeline_RefreshFailureFallsThrough(t *testing.T) {
	p := New(Config{
		RefreshToken: func(ctx context.Context) error {
			return errors.New("refresh rejected")
		},
		Retry: fastRetry(),
	})

	out := p.Recover(context.Background(), Request{
		Err:    errors.New("401"),
		Class:  classify.Classification{Kind: classify.KindAuthentication},
		Action: func(ctx context.Context) ([]byte, error) { return nil, errors.New("still 401") },
		Cache: func(ctx context.Context) ([]byte, bool) {
			return []byte("stale"), true
		},
	})

	if out.Status != StatusRecovered || !out.FromCache {
		t.Errorf("expected cache fallback, got %+v", out)
	}
}

func TestPipeline_CacheHitDoesNotReplayAction(t *testing.T) {
	p := New(Config{Retry: fastRetry()})

	invoked := 0
	out := p.Recover(context.Background(), Request{
		Err:   errors.New("boom"),
		Class: classify.Classification{Kind: classify.KindServer, Retryable: true},
		Action: func(ctx context.Context) ([]byte, error) {
			invoked++
			return nil, errors.New("boom")
		},
		Cache: func(ctx context.Context) ([]byte, bool) {
			return []byte("cached"), true
		},
	})

	if out.Status != StatusRecovered || string(out.Data) != "cached" || !out.FromCache {
		t.Errorf("expected cached outcome, got %+v", out)
	}
	if invoked != 0 {
		t.Errorf("action must not run on cache hit, ran %d times", invoked)
	}
}

func TestPipeline_NetworkErrorIsQueued(t *testing.T) {
	p := New(Config{Retry: fastRetry()})

	enqueued := false
	out := p.Recover(context.Background(), Request{
		Err:    errors.New("dial tcp: connection refused"),
		Class:  classify.Classification{Kind: classify.KindNetwork, Retryable: true},
		Action: func(ctx context.Context) ([]byte, error) { return nil, errors.New("offline") },
		Enqueue: func(ctx context.Context) error {
			enqueued = true
			return nil
		},
	})

	if !enqueued {
		t.Error("expected enqueue")
	}
	if out.Status != StatusQueued || out.Strategy != StrategyOffline {
		t.Errorf("expected queued outcome, got %+v", out)
	}
	if out.Data != nil {
		t.Error("queued outcome carries no data")
	}
}

func TestPipeline_EnqueueFailureFallsThroughToRetry(t *testing.T) {
	p := New(Config{Retry: fastRetry()})

	calls := 0
	out := p.Recover(context.Background(), Request{
		Err:   errors.New("transient glitch"),
		Class: classify.Classification{Kind: classify.KindNetwork, Retryable: true},
		Action: func(ctx context.Context) ([]byte, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("transient glitch")
			}
			return []byte("done"), nil
		},
		Enqueue: func(ctx context.Context) error {
			return errors.New("queue full")
		},
	})

	if out.Status != StatusRecovered || out.Strategy != StrategyRetry {
		t.Errorf("expected retry recovery, got %+v", out)
	}
	if string(out.Data) != "done" {
		t.Errorf("unexpected data %q", out.Data)
	}
}

func TestPipeline_AutoRetryRecovers(t *testing.T) {
	p := New(Config{Retry: fastRetry()})

	calls := 0
	out := p.Recover(context.Background(), Request{
		Err:   errors.New("transient"),
		Class: classify.Classification{Kind: classify.KindServer, Retryable: true},
		Action: func(ctx context.Context) ([]byte, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return []byte("ok"), nil
		},
	})

	if out.Status != StatusRecovered || out.Strategy != StrategyRetry {
		t.Errorf("expected retry recovery, got %+v", out)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestPipeline_PromptApprovedRunsOnce(t *testing.T) {
	prompted := false
	p := New(Config{
		Retry: fastRetry(),
		PromptUser: func(ctx context.Context, c classify.Classification) bool {
			prompted = true
			return true
		},
	})

	calls := 0
	out := p.Recover(context.Background(), Request{
		Err:   errors.New("validation failed"),
		Class: classify.Classification{Kind: classify.KindValidation, Retryable: false},
		Action: func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte("second time lucky"), nil
		},
	})

	if !prompted {
		t.Error("expected prompt for non-retryable failure")
	}
	if out.Status != StatusRecovered || out.Strategy != StrategyPrompt {
		t.Errorf("expected prompt recovery, got %+v", out)
	}
	if calls != 1 {
		t.Errorf("expected exactly one replay, got %d", calls)
	}
}

func TestPipeline_PromptDeclinedFails(t *testing.T) {
	original := errors.New("validation failed")
	p := New(Config{
		Retry: fastRetry(),
		PromptUser: func(ctx context.Context, c classify.Classification) bool {
			return false
		},
	})

	out := p.Recover(context.Background(), Request{
		Err:    original,
		Class:  classify.Classification{Kind: classify.KindValidation},
		Action: func(ctx context.Context) ([]byte, error) { return nil, original },
	})

	if out.Status != StatusFailed {
		t.Errorf("expected failure, got %+v", out)
	}
	if !errors.Is(out.Err, original) {
		t.Errorf("expected original error surfaced, got %v", out.Err)
	}
}

func TestPipeline_NoApplicableStrategyFails(t *testing.T) {
	original := errors.New("forbidden")
	p := New(Config{Retry: fastRetry()})

	out := p.Recover(context.Background(), Request{
		Err:    original,
		Class:  classify.Classification{Kind: classify.KindAuthorization, Retryable: false},
		Action: func(ctx context.Context) ([]byte, error) { return nil, original },
	})

	if out.Status != StatusFailed || !errors.Is(out.Err, original) {
		t.Errorf("expected failed outcome with original error, got %+v", out)
	}
}

func TestPipeline_BreakerOpenIsNeverReplayed(t *testing.T) {
	prompted := false
	p := New(Config{
		Retry: fastRetry(),
		PromptUser: func(ctx context.Context, c classify.Classification) bool {
			prompted = true
			return true
		},
	})

	rejected := errors.New("circuit breaker is open")
	replays := 0
	out := p.Recover(context.Background(), Request{
		Err:   rejected,
		Class: classify.BreakerOpen(),
		Action: func(ctx context.Context) ([]byte, error) {
			replays++
			return []byte("should not happen"), nil
		},
		Enqueue: func(ctx context.Context) error { return nil },
	})

	if out.Status != StatusFailed || !errors.Is(out.Err, rejected) {
		t.Fatalf("expected surfaced failure, got %+v", out)
	}
	if replays != 0 {
		t.Errorf("expected no replays, got %d", replays)
	}
	if prompted {
		t.Error("expected no user prompt for a breaker rejection")
	}
}

func TestPipeline_CancelledRequestIsNotQueued(t *testing.T) {
	p := New(Config{Retry: fastRetry()})

	enqueued := false
	out := p.Recover(context.Background(), Request{
		Err:     context.Canceled,
		Class:   classify.Classify(context.Canceled),
		Action:  func(ctx context.Context) ([]byte, error) { return nil, context.Canceled },
		Enqueue: func(ctx context.Context) error { enqueued = true; return nil },
	})

	if out.Status != StatusFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	if enqueued {
		t.Error("a cancelled request must not enter the offline queue")
	}
}
