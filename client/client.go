package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/apikit/classify"
	apperrors "github.com/kbukum/apikit/errors"
	"github.com/kbukum/apikit/logger"
	"github.com/kbukum/apikit/observability"
	"github.com/kbukum/apikit/queue"
	"github.com/kbukum/apikit/recovery"
	"github.com/kbukum/apikit/resilience"
	"github.com/kbukum/apikit/transport"
	"github.com/kbukum/apikit/version"
)

// ErrDestroyed is returned by calls made after Destroy.
var ErrDestroyed = errors.New("client is destroyed")

// Headers attached to queued replays.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderConflictPolicy = "X-Conflict-Policy"
)

// Request describes one client call.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	// Body is the request body; values are JSON-encoded.
	Body any

	// Priority orders the request in the offline queue.
	Priority queue.Priority
	// ConflictPolicy is advisory replay metadata, sent as a header.
	ConflictPolicy queue.ConflictPolicy
	// MaxAttempts overrides the queue's replay attempt limit.
	MaxAttempts int
	// RequireOnline marks a request that must not be attempted while
	// offline. It is queued for replay immediately, even when a cached
	// response could have served it.
	RequireOnline bool
	// SkipCache bypasses the response cache for this call.
	SkipCache bool
}

// Client is the unified API client.
type Client struct {
	cfg Config
	log *logger.Logger

	tr       transport.Transport
	breaker  *resilience.CircuitBreaker
	limiter  *resilience.RateLimiter
	queue    *queue.Queue
	cache    *responseCache
	tokens   *TokenSource
	pipeline *recovery.Pipeline
	metrics  *clientMetrics

	destroyed atomic.Bool
}

// New creates a client. The client starts online; call SetOnline when
// connectivity changes.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	if cfg.Transport == nil && cfg.BaseURL == "" {
		return nil, fmt.Errorf("client config: base_url or transport is required")
	}

	c := &Client{
		cfg:    cfg,
		log:    cfg.Logger,
		tr:     cfg.Transport,
		tokens: cfg.Tokens,
	}

	if c.tr == nil {
		c.tr = transport.NewHTTP(transport.HTTPConfig{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Headers: cfg.Headers,
		})
	}

	c.metrics = newClientMetrics()

	breakerCfg := cfg.Breaker
	userHook := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		c.log.Warn("circuit breaker state change", map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
		c.metrics.recordBreakerState(to)
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	c.breaker = resilience.NewCircuitBreaker(breakerCfg)

	if cfg.RateLimit != nil {
		c.limiter = resilience.NewRateLimiter(*cfg.RateLimit)
	}

	if cfg.CacheTTL > 0 {
		c.cache = newResponseCache(cfg.CacheTTL, cfg.Now)
	}

	queueCfg := cfg.Queue
	if queueCfg.Logger == nil {
		queueCfg.Logger = cfg.Logger.WithComponent("queue")
	}
	q, err := queue.New(queueCfg)
	if err != nil {
		return nil, err
	}
	c.queue = q
	c.queue.SetHandler(c.replay)
	c.queue.Subscribe(c.onQueueEvent)
	c.queue.Start()
	c.queue.SetOnline(true)

	c.pipeline = recovery.New(recovery.Config{
		RefreshToken: c.refreshToken(),
		Retry:        cfg.Retry,
		PromptUser:   c.promptHook(),
		Logger:       cfg.Logger.WithComponent("recovery"),
	})

	if cfg.ProbeInterval > 0 {
		probePath := cfg.ProbePath
		c.breaker.StartProbe(cfg.ProbeInterval, func(ctx context.Context) error {
			_, err := c.tr.Do(ctx, transport.Request{Method: http.MethodGet, Path: probePath})
			return err
		})
	}

	return c, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query map[string]string) Result {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) Result {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) Result {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any) Result {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) Result {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Do executes a request through the full stack: cache, offline queue,
// rate limiter, circuit breaker, retry, and on failure the recovery
// pipeline.
func (c *Client) Do(ctx context.Context, req Request) Result {
	if c.destroyed.Load() {
		return failResult(ErrDestroyed, classify.Classification{
			Kind:        classify.KindUnknown,
			UserMessage: classify.MessageFor(classify.KindUnknown),
		})
	}

	req.Method = strings.ToUpper(req.Method)

	oc := observability.NewOperationContext(componentName, req.Method+" "+req.Path, uuid.NewString(), "", nil)
	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanClientRequest)
	res := c.do(ctx, req)
	oc.EndOperation(ctx, span, outcomeOf(res), res.Err)
	return res
}

func (c *Client) do(ctx context.Context, req Request) Result {
	isGet := req.Method == http.MethodGet
	key := cacheKey(req.Path, req.Query)

	// Fresh cache hits skip the network entirely.
	if isGet && c.cache != nil && !req.SkipCache {
		if data, ok := c.cache.get(key, false); ok {
			c.metrics.recordRequest(req.Method, "cache_hit")
			return cachedResult(data)
		}
	}

	if !c.queue.Online() {
		return c.doOffline(ctx, req, key, isGet)
	}

	resp, err := c.send(ctx, req)
	if err == nil {
		if isGet {
			if c.cache != nil {
				c.cache.set(key, resp.Body)
			}
		} else if c.cache != nil {
			// A successful mutation outdates cached reads under the path.
			c.cache.invalidatePrefix(req.Path)
		}
		c.metrics.recordRequest(req.Method, "success")
		return successResult(resp.StatusCode, resp.Body)
	}

	return c.recover(ctx, req, key, isGet, err)
}

// doOffline handles a request while the client knows it is offline. The
// transport is never touched: reads fall back to stale cache, and
// everything else, RequireOnline requests included, is queued for
// replay.
func (c *Client) doOffline(ctx context.Context, req Request, key string, isGet bool) Result {
	offline := apperrors.Offline()
	class := classify.Classify(transport.NewConnectionError(offline))

	if isGet && !req.RequireOnline {
		if c.cache != nil {
			if data, ok := c.cache.get(key, true); ok {
				c.metrics.recordRequest(req.Method, "cache_stale")
				return cachedResult(data)
			}
		}
		c.metrics.recordRequest(req.Method, "offline_failed")
		return failResult(offline, class)
	}

	item, err := c.enqueue(ctx, req)
	if err != nil {
		c.metrics.recordRequest(req.Method, "offline_failed")
		return failResult(err, class)
	}
	c.metrics.recordRequest(req.Method, "queued")
	return queuedResult(item)
}

// recover classifies a failure and runs the recovery pipeline. Breaker
// rejections and non-retryable classifications are surfaced as they
// are; only authentication failures and transient kinds get recovery
// attempts.
func (c *Client) recover(ctx context.Context, req Request, key string, isGet bool, sendErr error) Result {
	// An open breaker already decided no call should happen. No replay,
	// no queueing.
	if errors.Is(sendErr, resilience.ErrCircuitOpen) {
		c.metrics.recordRequest(req.Method, "failed")
		return failResult(sendErr, classify.BreakerOpen())
	}

	class := classify.Classify(sendErr)
	if !class.Retryable && class.Kind != classify.KindAuthentication {
		c.metrics.recordRequest(req.Method, "failed")
		return failResult(sendErr, class)
	}

	recReq := recovery.Request{
		Err:   sendErr,
		Class: class,
		Action: func(ctx context.Context) ([]byte, error) {
			resp, err := c.sendDirect(ctx, req, nil)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
	}
	if isGet && c.cache != nil && !req.SkipCache {
		recReq.Cache = func(ctx context.Context) ([]byte, bool) {
			return c.cache.get(key, true)
		}
	}
	if !isGet {
		recReq.Enqueue = func(ctx context.Context) error {
			// The transport just failed on a network error; stop
			// draining before accepting the item.
			c.queue.SetOnline(false)
			_, err := c.enqueue(ctx, req)
			return err
		}
	}

	out := c.pipeline.Recover(ctx, recReq)
	switch out.Status {
	case recovery.StatusRecovered:
		if isGet && c.cache != nil && !out.FromCache {
			c.cache.set(key, out.Data)
		}
		c.metrics.recordRequest(req.Method, "recovered")
		return Result{Success: true, Data: out.Data, FromCache: out.FromCache}
	case recovery.StatusQueued:
		c.metrics.recordRequest(req.Method, "queued")
		return Result{
			Queued:      true,
			Kind:        class.Kind,
			UserMessage: queuedMessage,
		}
	default:
		c.metrics.recordRequest(req.Method, "failed")
		finalErr := out.Err
		if finalErr == nil {
			finalErr = sendErr
		}
		return failResult(finalErr, class)
	}
}

// send runs a request through limiter, breaker, and retry.
func (c *Client) send(ctx context.Context, req Request) (*transport.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var resp *transport.Response
	err := c.breaker.Execute(func() error {
		r, err := resilience.Retry(ctx, c.cfg.Retry, func() (*transport.Response, error) {
			return c.sendDirect(ctx, req, nil)
		})
		resp = r
		return err
	})
	return resp, err
}

// sendDirect sends through the transport only, bypassing breaker and
// retry. Used for queue replays and recovery replays.
func (c *Client) sendDirect(ctx context.Context, req Request, extraHeaders map[string]string) (*transport.Response, error) {
	headers := make(map[string]string, len(req.Headers)+len(extraHeaders)+2)
	headers["User-Agent"] = "apikit/" + version.GetShortVersion()
	for k, v := range req.Headers {
		headers[k] = v
	}
	for k, v := range extraHeaders {
		headers[k] = v
	}

	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = "Bearer " + tok
	}

	return c.tr.Do(ctx, transport.Request{
		Method:  req.Method,
		Path:    req.Path,
		Headers: headers,
		Query:   req.Query,
		Body:    req.Body,
	})
}

// enqueue stores a request in the offline queue.
func (c *Client) enqueue(ctx context.Context, req Request) (queue.Item, error) {
	var payload json.RawMessage
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return queue.Item{}, fmt.Errorf("client enqueue: encode body: %w", err)
		}
		payload = raw
	}

	return c.queue.Enqueue(ctx, queue.Item{
		Endpoint:       req.Path,
		Method:         req.Method,
		Payload:        payload,
		Headers:        req.Headers,
		Priority:       req.Priority,
		ConflictPolicy: req.ConflictPolicy,
		MaxAttempts:    req.MaxAttempts,
		IdempotencyKey: resilience.IdempotencyKey(req.Path, payload, c.cfg.Now()),
	})
}

// replay sends one queued item, bypassing breaker and retry; the queue
// owns the attempt accounting.
func (c *Client) replay(ctx context.Context, item queue.Item) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanQueueReplay)
	defer span.End()

	extra := map[string]string{}
	if item.IdempotencyKey != "" {
		extra[HeaderIdempotencyKey] = item.IdempotencyKey
	}
	if item.ConflictPolicy != "" {
		extra[HeaderConflictPolicy] = string(item.ConflictPolicy)
	}

	var body any
	if len(item.Payload) > 0 {
		body = []byte(item.Payload)
	}

	_, err := c.sendDirect(ctx, Request{
		Method:  item.Method,
		Path:    item.Endpoint,
		Headers: item.Headers,
		Body:    body,
	}, extra)
	return err
}

// onQueueEvent keeps the cache coherent with queue replays.
func (c *Client) onQueueEvent(ev queue.Event) {
	if ev.Type == queue.EventProcessed && c.cache != nil && ev.Item != nil {
		c.cache.invalidatePrefix(ev.Item.Endpoint)
	}
	c.metrics.recordQueueDepth(ev.Size)
}

// refreshToken adapts the token source for the recovery pipeline.
func (c *Client) refreshToken() func(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := c.tokens.Invalidate(ctx); err != nil {
			return err
		}
		return c.tokens.Refresh(ctx)
	}
}

// promptHook adapts the configured prompt to the pipeline signature.
func (c *Client) promptHook() func(ctx context.Context, class classify.Classification) bool {
	if c.cfg.PromptUser == nil {
		return nil
	}
	return func(ctx context.Context, class classify.Classification) bool {
		return c.cfg.PromptUser(class)
	}
}

// SetOnline records connectivity. Going online triggers a queue drain;
// going offline routes new mutations into the queue.
func (c *Client) SetOnline(online bool) {
	c.queue.SetOnline(online)
}

// Online reports current connectivity.
func (c *Client) Online() bool {
	return c.queue.Online()
}

// BreakerMetrics returns the circuit breaker snapshot.
func (c *Client) BreakerMetrics() resilience.BreakerMetrics {
	return c.breaker.Metrics()
}

// QueueStats returns the offline queue snapshot.
func (c *Client) QueueStats() queue.Stats {
	return c.queue.Stats()
}

// Subscribe registers a listener for offline queue events.
func (c *Client) Subscribe(fn queue.Listener) func() {
	return c.queue.Subscribe(fn)
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.clear()
	}
}

// Destroy releases the background resources: the breaker probe and the
// queue drain loop. Queued items persist for the next process.
func (c *Client) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	c.breaker.StopProbe()
	c.queue.Destroy()
}
