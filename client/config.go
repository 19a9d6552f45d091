package client

import (
	"time"

	"github.com/kbukum/apikit/classify"
	"github.com/kbukum/apikit/logger"
	"github.com/kbukum/apikit/queue"
	"github.com/kbukum/apikit/resilience"
	"github.com/kbukum/apikit/transport"
	"github.com/kbukum/apikit/validation"
)

const defaultTimeout = 30 * time.Second

// Config configures the unified client. Only BaseURL is required when
// Transport is not supplied.
type Config struct {
	// BaseURL is prepended to all request paths.
	BaseURL string `json:"base_url" validate:"omitempty,url"`

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration `json:"timeout"`

	// Headers are applied to every request.
	Headers map[string]string `json:"headers"`

	// Retry configures the retry loop around the transport.
	Retry resilience.RetryConfig `json:"-"`

	// Breaker configures the circuit breaker guarding the transport.
	Breaker resilience.CircuitBreakerConfig `json:"-"`

	// RateLimit bounds outbound request rate. Nil disables limiting.
	RateLimit *resilience.RateLimiterConfig `json:"-"`

	// Queue configures the offline queue.
	Queue queue.Config `json:"-"`

	// CacheTTL is the freshness window for cached GET responses.
	// Zero means the 5m default; negative disables the cache.
	CacheTTL time.Duration `json:"cache_ttl"`

	// ProbeInterval is the breaker health-probe period. Zero disables
	// the probe. The probe issues GET ProbePath through the transport.
	ProbeInterval time.Duration `json:"probe_interval"`
	// ProbePath defaults to "/health".
	ProbePath string `json:"probe_path"`

	// Transport overrides the default HTTP transport.
	Transport transport.Transport `json:"-"`

	// Tokens supplies and refreshes the bearer token. Nil disables
	// authentication handling.
	Tokens *TokenSource `json:"-"`

	// PromptUser is the last-resort recovery hook. Nil disables it.
	PromptUser func(c classify.Classification) bool `json:"-"`

	// Logger defaults to a component-tagged default logger.
	Logger *logger.Logger `json:"-"`

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time `json:"-"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.ProbePath == "" {
		c.ProbePath = "/health"
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = "client"
	}
	if c.Logger == nil {
		c.Logger = logger.NewDefault("apikit").WithComponent("client")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
