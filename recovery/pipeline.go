package recovery

import (
	"context"

	"github.com/kbukum/apikit/classify"
	"github.com/kbukum/apikit/logger"
	"github.com/kbukum/apikit/resilience"
)

// Status is the outcome class of a recovery attempt.
type Status string

const (
	// StatusRecovered means a strategy produced a usable response.
	StatusRecovered Status = "recovered"
	// StatusQueued means the request was accepted for offline replay
	// but has not completed.
	StatusQueued Status = "queued"
	// StatusFailed means no strategy could help.
	StatusFailed Status = "failed"
)

// Strategy names, reported in Outcome for observability.
const (
	StrategyTokenRefresh = "token_refresh"
	StrategyCache        = "cache_fallback"
	StrategyOffline      = "offline_queue"
	StrategyRetry        = "auto_retry"
	StrategyPrompt       = "user_prompt"
)

// Action re-executes the failed request and returns the response body.
type Action func(ctx context.Context) ([]byte, error)

// Request carries one failure through the pipeline. Action is required;
// Cache and Enqueue are optional per-request hooks.
type Request struct {
	// Err is the original failure.
	Err error
	// Class is the classification of Err.
	Class classify.Classification
	// Action replays the original request.
	Action Action
	// Cache returns a previously cached response for this request.
	Cache func(ctx context.Context) ([]byte, bool)
	// Enqueue stores the request for replay once connectivity returns.
	Enqueue func(ctx context.Context) error
}

// Outcome is the result of running the pipeline.
type Outcome struct {
	Status Status
	// Data holds the recovered response body when Status is recovered.
	Data []byte
	// FromCache marks data served from the cache fallback.
	FromCache bool
	// Strategy names the strategy that produced the outcome.
	Strategy string
	// Err is the final error when Status is failed.
	Err error
}

// Config configures the pipeline.
type Config struct {
	// RefreshToken renews credentials. Nil disables the token-refresh
	// strategy.
	RefreshToken func(ctx context.Context) error
	// Retry bounds the auto-retry strategy.
	Retry resilience.RetryConfig
	// PromptUser asks whether to try once more. Nil disables the
	// prompt strategy. It must not block beyond the context.
	PromptUser func(ctx context.Context, c classify.Classification) bool
	// Logger defaults to a component-tagged default logger.
	Logger *logger.Logger
}

// Pipeline applies recovery strategies in a fixed order.
type Pipeline struct {
	cfg Config
	log *logger.Logger
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("apikit").WithComponent("recovery")
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}
}

// Recover runs the strategies against one failure. The first strategy
// that yields a response or accepts the request wins; if none apply the
// original error is surfaced.
func (p *Pipeline) Recover(ctx context.Context, req Request) Outcome {
	// A breaker rejection or caller cancellation is final. Replaying
	// would defeat fail-fast, and queueing a cancelled request would
	// resurrect it.
	if req.Class.Kind == classify.KindBreakerOpen || req.Class.Kind == classify.KindCancelled {
		return Outcome{Status: StatusFailed, Err: req.Err}
	}

	// Authentication failures: renew the token, then replay once.
	if req.Class.Kind == classify.KindAuthentication && p.cfg.RefreshToken != nil && req.Action != nil {
		if out, ok := p.tryTokenRefresh(ctx, req); ok {
			return out
		}
	}

	// Cached response, stale but usable.
	if req.Cache != nil {
		if data, ok := req.Cache(ctx); ok {
			p.log.Debug("recovered from cache")
			return Outcome{Status: StatusRecovered, Data: data, FromCache: true, Strategy: StrategyCache}
		}
	}

	// Network failures while a queue is available: accept for later.
	if req.Class.Kind == classify.KindNetwork && req.Enqueue != nil {
		err := req.Enqueue(ctx)
		if err == nil {
			p.log.Info("request queued for offline replay")
			return Outcome{Status: StatusQueued, Strategy: StrategyOffline}
		}
		p.log.Warn("offline enqueue failed", map[string]interface{}{"error": err.Error()})
	}

	// Bounded auto-retry for transient failures.
	if req.Class.Retryable && req.Action != nil {
		data, err := resilience.Retry(ctx, p.cfg.Retry, func() ([]byte, error) {
			return req.Action(ctx)
		})
		if err == nil {
			p.log.Debug("recovered by retry")
			return Outcome{Status: StatusRecovered, Data: data, Strategy: StrategyRetry}
		}
		req.Err = err
	}

	// Last resort: ask the user for one more attempt.
	if p.cfg.PromptUser != nil && req.Action != nil {
		if p.cfg.PromptUser(ctx, req.Class) {
			data, err := req.Action(ctx)
			if err == nil {
				return Outcome{Status: StatusRecovered, Data: data, Strategy: StrategyPrompt}
			}
			req.Err = err
		}
	}

	return Outcome{Status: StatusFailed, Err: req.Err}
}

// tryTokenRefresh renews credentials and replays the request. Reports
// whether the strategy produced an outcome.
func (p *Pipeline) tryTokenRefresh(ctx context.Context, req Request) (Outcome, bool) {
	if err := p.cfg.RefreshToken(ctx); err != nil {
		p.log.Warn("token refresh failed", map[string]interface{}{"error": err.Error()})
		return Outcome{}, false
	}

	data, err := req.Action(ctx)
	if err != nil {
		p.log.Warn("replay after token refresh failed", map[string]interface{}{"error": err.Error()})
		return Outcome{}, false
	}

	p.log.Info("recovered by token refresh")
	return Outcome{Status: StatusRecovered, Data: data, Strategy: StrategyTokenRefresh}, true
}
