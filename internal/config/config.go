package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/climate-outlook-service/internal/risk"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	ProviderForecastURL string
	ProviderArchiveURL  string
	ProviderTimeout     time.Duration

	RequestTimeout time.Duration

	ForecastHorizonDays int
	MinWindowDays       int
	MaxWindowDays       int
	MaxFutureDays       int
	ArchiveStart        time.Time
	ArchiveLagDays      int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	CacheTTL     time.Duration
	CacheBackend string // "in_memory", "memcached" or "sqlite"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SQLitePath string

	HeatBaseC               float64
	HeatHighMarginC         float64
	ColdBaseC               float64
	ColdHighMarginC         float64
	WindHighMarginKMH       float64
	WetDailyMM              float64
	WetMediumPct            float64
	WetHighPct              float64
	DiscomfortHeatC         float64
	DiscomfortDewPointC     float64
	DiscomfortHighDewPointC float64
	MinSampleForEmpirical   int
	FallbackLowPct          float64
	FallbackMediumPct       float64
	FallbackHighPct         float64

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout         time.Duration
	ShutdownInFlightTimeout time.Duration
	ShutdownCheckInterval   time.Duration

	ReadyDelay             time.Duration
	OverloadWindow         time.Duration
	OverloadThresholdRPM   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Provider struct {
		ForecastURL string `yaml:"forecast_url"`
		ArchiveURL  string `yaml:"archive_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"provider"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Outlook struct {
		ForecastHorizonDays int    `yaml:"forecast_horizon_days"`
		MinWindowDays       int    `yaml:"min_window_days"`
		MaxWindowDays       int    `yaml:"max_window_days"`
		MaxFutureDays       int    `yaml:"max_future_days"`
		ArchiveStart        string `yaml:"archive_start"`
		ArchiveLagDays      int    `yaml:"archive_lag_days"`
		CoalesceEnabled     *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout     string `yaml:"coalesce_timeout"`
	} `yaml:"outlook"`

	Thresholds struct {
		HeatBaseC               *float64 `yaml:"heat_base_c"`
		HeatHighMarginC         *float64 `yaml:"heat_high_margin_c"`
		ColdBaseC               *float64 `yaml:"cold_base_c"`
		ColdHighMarginC         *float64 `yaml:"cold_high_margin_c"`
		WindHighMarginKMH       *float64 `yaml:"wind_high_margin_kmh"`
		WetDailyMM              *float64 `yaml:"wet_daily_mm"`
		WetMediumPct            *float64 `yaml:"wet_medium_pct"`
		WetHighPct              *float64 `yaml:"wet_high_pct"`
		DiscomfortHeatC         *float64 `yaml:"discomfort_heat_c"`
		DiscomfortDewPointC     *float64 `yaml:"discomfort_dew_point_c"`
		DiscomfortHighDewPointC *float64 `yaml:"discomfort_high_dew_point_c"`
		MinSampleForEmpirical   *int     `yaml:"min_sample_for_empirical"`
		FallbackLowPct          *float64 `yaml:"fallback_low_pct"`
		FallbackMediumPct       *float64 `yaml:"fallback_medium_pct"`
		FallbackHighPct         *float64 `yaml:"fallback_high_pct"`
	} `yaml:"thresholds"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
		CheckInterval   string `yaml:"check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		ReadyDelay             string `yaml:"ready_delay"`
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdRPM   int    `yaml:"overload_threshold_rpm"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// The weather data provider is keyless, so there is no secrets file.
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ProviderForecastURL = fc.Provider.ForecastURL
	if cfg.ProviderForecastURL == "" {
		cfg.ProviderForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.ProviderArchiveURL = fc.Provider.ArchiveURL
	if cfg.ProviderArchiveURL == "" {
		cfg.ProviderArchiveURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	cfg.ProviderTimeout = parseDuration(fc.Provider.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.ForecastHorizonDays = fc.Outlook.ForecastHorizonDays
	if cfg.ForecastHorizonDays <= 0 {
		cfg.ForecastHorizonDays = 16
	}
	cfg.MinWindowDays = fc.Outlook.MinWindowDays
	if cfg.MinWindowDays <= 0 {
		cfg.MinWindowDays = 1
	}
	cfg.MaxWindowDays = fc.Outlook.MaxWindowDays
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 30
	}
	cfg.MaxFutureDays = fc.Outlook.MaxFutureDays
	if cfg.MaxFutureDays <= 0 {
		cfg.MaxFutureDays = 366
	}
	archiveStart := strings.TrimSpace(fc.Outlook.ArchiveStart)
	if archiveStart == "" {
		archiveStart = "1940-01-01"
	}
	cfg.ArchiveStart, err = time.Parse("2006-01-02", archiveStart)
	if err != nil {
		return nil, fmt.Errorf("parse outlook.archive_start %q: %w", archiveStart, err)
	}
	cfg.ArchiveLagDays = fc.Outlook.ArchiveLagDays
	if cfg.ArchiveLagDays <= 0 {
		cfg.ArchiveLagDays = 2
	}
	cfg.CoalesceEnabled = true
	if fc.Outlook.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Outlook.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Outlook.CoalesceTimeout, 10*time.Second)

	cfg.HeatBaseC = floatOr(fc.Thresholds.HeatBaseC, 33)
	cfg.HeatHighMarginC = floatOr(fc.Thresholds.HeatHighMarginC, 5)
	cfg.ColdBaseC = floatOr(fc.Thresholds.ColdBaseC, -10)
	cfg.ColdHighMarginC = floatOr(fc.Thresholds.ColdHighMarginC, 8)
	cfg.WindHighMarginKMH = floatOr(fc.Thresholds.WindHighMarginKMH, 10)
	cfg.WetDailyMM = floatOr(fc.Thresholds.WetDailyMM, 10)
	cfg.WetMediumPct = floatOr(fc.Thresholds.WetMediumPct, 25)
	cfg.WetHighPct = floatOr(fc.Thresholds.WetHighPct, 50)
	cfg.DiscomfortHeatC = floatOr(fc.Thresholds.DiscomfortHeatC, 28)
	cfg.DiscomfortDewPointC = floatOr(fc.Thresholds.DiscomfortDewPointC, 21)
	cfg.DiscomfortHighDewPointC = floatOr(fc.Thresholds.DiscomfortHighDewPointC, 24)
	cfg.MinSampleForEmpirical = intOr(fc.Thresholds.MinSampleForEmpirical, 5)
	cfg.FallbackLowPct = floatOr(fc.Thresholds.FallbackLowPct, 15)
	cfg.FallbackMediumPct = floatOr(fc.Thresholds.FallbackMediumPct, 75)
	cfg.FallbackHighPct = floatOr(fc.Thresholds.FallbackHighPct, 85)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = strings.TrimSpace(fc.Cache.SQLite.Path)
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cwd, "data", "outlooks.db")
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 25*time.Second)
	cfg.ShutdownCheckInterval = parseDuration(fc.Shutdown.CheckInterval, 100*time.Millisecond)

	cfg.ReadyDelay = parseDuration(fc.Lifecycle.ReadyDelay, 3*time.Second)
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdRPM = fc.Lifecycle.OverloadThresholdRPM
	if cfg.OverloadThresholdRPM <= 0 {
		cfg.OverloadThresholdRPM = 6000
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func floatOr(p *float64, defaultVal float64) float64 {
	if p == nil {
		return defaultVal
	}
	return *p
}

func intOr(p *int, defaultVal int) int {
	if p == nil {
		return defaultVal
	}
	return *p
}

// validate performs post-load validation of configuration values.
// Ensures the request timeout dominates the provider timeout (auto-adjusts
// when it does not) and that cross-field bounds are coherent.
func validate(cfg *Config) error {
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ProviderTimeout {
		cfg.RequestTimeout = cfg.ProviderTimeout + time.Second
	}
	if cfg.MinWindowDays > cfg.MaxWindowDays {
		return fmt.Errorf("outlook.min_window_days %d exceeds outlook.max_window_days %d", cfg.MinWindowDays, cfg.MaxWindowDays)
	}
	if cfg.WetMediumPct > cfg.WetHighPct {
		return fmt.Errorf("thresholds.wet_medium_pct %.1f exceeds thresholds.wet_high_pct %.1f", cfg.WetMediumPct, cfg.WetHighPct)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "sqlite":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or sqlite, got %q", cfg.CacheBackend)
	}
	return nil
}

// RiskThresholds returns the risk rule breakpoints as the classifier's
// threshold set.
func (c *Config) RiskThresholds() risk.Thresholds {
	return risk.Thresholds{
		HeatBaseC:               c.HeatBaseC,
		HeatHighMarginC:         c.HeatHighMarginC,
		ColdBaseC:               c.ColdBaseC,
		ColdHighMarginC:         c.ColdHighMarginC,
		WindHighMarginKMH:       c.WindHighMarginKMH,
		WetDailyMM:              c.WetDailyMM,
		WetMediumPct:            c.WetMediumPct,
		WetHighPct:              c.WetHighPct,
		DiscomfortHeatC:         c.DiscomfortHeatC,
		DiscomfortDewPointC:     c.DiscomfortDewPointC,
		DiscomfortHighDewPointC: c.DiscomfortHighDewPointC,
		MinSampleForEmpirical:   c.MinSampleForEmpirical,
		FallbackLowPct:          c.FallbackLowPct,
		FallbackMediumPct:       c.FallbackMediumPct,
		FallbackHighPct:         c.FallbackHighPct,
	}
}
