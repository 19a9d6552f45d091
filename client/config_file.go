package client

import (
	"time"

	"github.com/kbukum/apikit/config"
	"github.com/kbukum/apikit/logger"
	"github.com/kbukum/apikit/resilience"
)

// FileConfig is the loadable shape of Config. It covers the fields that
// make sense in a config file; hooks, stores, and transports are wired in
// code after loading.
type FileConfig struct {
	BaseURL       string            `yaml:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration     `yaml:"timeout" mapstructure:"timeout"`
	Headers       map[string]string `yaml:"headers" mapstructure:"headers"`
	CacheTTL      time.Duration     `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	ProbeInterval time.Duration     `yaml:"probe_interval" mapstructure:"probe_interval"`
	ProbePath     string            `yaml:"probe_path" mapstructure:"probe_path"`

	Retry struct {
		MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
		BaseDelay     time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
		MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
		Strategy      string        `yaml:"strategy" mapstructure:"strategy"`
		DisableJitter bool          `yaml:"disable_jitter" mapstructure:"disable_jitter"`
		Budget        time.Duration `yaml:"budget" mapstructure:"budget"`
	} `yaml:"retry" mapstructure:"retry"`

	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
		SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold"`
		OpenDuration     time.Duration `yaml:"open_duration" mapstructure:"open_duration"`
		FailureWindow    time.Duration `yaml:"failure_window" mapstructure:"failure_window"`
	} `yaml:"breaker" mapstructure:"breaker"`

	RateLimit struct {
		Rate  float64 `yaml:"rate" mapstructure:"rate"`
		Burst int     `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`

	Queue struct {
		MaxSize       int           `yaml:"max_size" mapstructure:"max_size"`
		MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"`
		DrainInterval time.Duration `yaml:"drain_interval" mapstructure:"drain_interval"`
		PersistKey    string        `yaml:"persist_key" mapstructure:"persist_key"`
	} `yaml:"queue" mapstructure:"queue"`

	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// LoadConfig reads client configuration for serviceName from config.yml
// and .env files in the standard search locations, then converts it into
// a Config ready for New.
func LoadConfig(serviceName string, opts ...config.LoaderOption) (Config, error) {
	var fc FileConfig
	if err := config.LoadConfig(serviceName, &fc, opts...); err != nil {
		return Config{}, err
	}

	cfg := fc.ToConfig()
	if fc.Logging.Level != "" || fc.Logging.Format != "" {
		lc := fc.Logging
		lc.ApplyDefaults()
		cfg.Logger = logger.New(&lc, serviceName).WithComponent("client")
	}
	return cfg, nil
}

// ToConfig converts the loaded file values into a Config, filling the
// resilience sections from their defaults where the file is silent.
func (fc FileConfig) ToConfig() Config {
	cfg := Config{
		BaseURL:       fc.BaseURL,
		Timeout:       fc.Timeout,
		Headers:       fc.Headers,
		CacheTTL:      fc.CacheTTL,
		ProbeInterval: fc.ProbeInterval,
		ProbePath:     fc.ProbePath,
	}

	retry := resilience.DefaultRetryConfig()
	if fc.Retry.MaxRetries > 0 {
		retry.MaxRetries = fc.Retry.MaxRetries
	}
	if fc.Retry.BaseDelay > 0 {
		retry.BaseDelay = fc.Retry.BaseDelay
	}
	if fc.Retry.MaxDelay > 0 {
		retry.MaxDelay = fc.Retry.MaxDelay
	}
	if fc.Retry.Strategy != "" {
		retry.Strategy = resilience.Strategy(fc.Retry.Strategy)
	}
	if fc.Retry.DisableJitter {
		retry.Jitter = false
	}
	if fc.Retry.Budget > 0 {
		retry.Budget = fc.Retry.Budget
	}
	cfg.Retry = retry

	breaker := resilience.DefaultCircuitBreakerConfig("client")
	if fc.Breaker.FailureThreshold > 0 {
		breaker.FailureThreshold = fc.Breaker.FailureThreshold
	}
	if fc.Breaker.SuccessThreshold > 0 {
		breaker.SuccessThreshold = fc.Breaker.SuccessThreshold
	}
	if fc.Breaker.OpenDuration > 0 {
		breaker.OpenDuration = fc.Breaker.OpenDuration
	}
	if fc.Breaker.FailureWindow > 0 {
		breaker.FailureWindow = fc.Breaker.FailureWindow
	}
	cfg.Breaker = breaker

	if fc.RateLimit.Rate > 0 {
		cfg.RateLimit = &resilience.RateLimiterConfig{
			Name:  "client",
			Rate:  fc.RateLimit.Rate,
			Burst: fc.RateLimit.Burst,
		}
	}

	cfg.Queue.MaxSize = fc.Queue.MaxSize
	cfg.Queue.MaxAttempts = fc.Queue.MaxAttempts
	cfg.Queue.DrainInterval = fc.Queue.DrainInterval
	cfg.Queue.PersistKey = fc.Queue.PersistKey

	return cfg
}
