package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"FKSEngine/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string     `yaml:"environment"`
	Server      Server     `yaml:"server"`
	Metrics     Metrics    `yaml:"metrics"`
	Logging     Logging    `yaml:"logging"`
	Engine      Engine     `yaml:"engine"`
	Markets     []Market   `yaml:"markets"`
	Feed        Feed       `yaml:"feed"`
	Kafka       Kafka      `yaml:"kafka"`
	ClickHouse  ClickHouse `yaml:"clickhouse"`
	Redis       Redis      `yaml:"redis"`
	Analytics   Analytics  `yaml:"analytics"`
}

type Server struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	RateLimit       int           `yaml:"rate_limit" default:"50"` // requests per second per client
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type Logging struct {
	Level     string `yaml:"level" default:"info"`
	Format    string `yaml:"format" default:"json"`
	Output    string `yaml:"output" default:"stdout"`
	Collector struct {
		Enabled         bool          `yaml:"enabled"`
		Interval        time.Duration `yaml:"interval" default:"30s"`
		CountThreshold  int           `yaml:"count_threshold" default:"100"`
		Topic           string        `yaml:"topic" default:"fks.logs"`
		CollectWarnings bool          `yaml:"collect_warnings"`
	} `yaml:"collector"`
}

// Engine holds the tunables shared by every per-symbol engine.
type Engine struct {
	Symbols               []string           `yaml:"symbols"`
	HistoryCapacity       int                `yaml:"history_capacity" default:"50"`
	MinComponentAgreement int                `yaml:"min_component_agreement" default:"2"`
	MaxSignalAge          time.Duration      `yaml:"max_signal_age" default:"15m"`
	ConsensusThreshold    float64            `yaml:"consensus_threshold" default:"0.6"`
	MinQuality            float64            `yaml:"min_quality" default:"0.5"`
	BaseWeights           map[string]float64 `yaml:"base_weights"`
	HealthInterval        time.Duration      `yaml:"health_interval" default:"30s"`
	SessionTimezone       string             `yaml:"session_timezone" default:"UTC"`
	InsightWindow         int                `yaml:"insight_window" default:"5"`
	EstimateTrendStrength bool               `yaml:"estimate_trend_strength" default:"true"`
	Timeframe             string             `yaml:"timeframe" default:"5m"`
	ResetOnWeekOpen       bool               `yaml:"reset_on_week_open" default:"true"`
}

// Market is a per-instrument profile. Breakpoints are ATR-to-average ratios.
type Market struct {
	Symbol     string  `yaml:"symbol"`
	TickSize   float64 `yaml:"tick_size"`
	VeryHigh   float64 `yaml:"very_high" default:"2.0"`
	High       float64 `yaml:"high" default:"1.5"`
	Medium     float64 `yaml:"medium" default:"1.2"`
	Low        float64 `yaml:"low" default:"0.7"`
	VeryLow    float64 `yaml:"very_low" default:"0.5"`
	MaxRiskPct float64 `yaml:"max_risk_pct" default:"2.5"`
}

type Feed struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	ThrottlePerSec int           `yaml:"throttle_per_sec" default:"20"`
}

type Kafka struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Topics       struct {
		Bars       string `yaml:"bars" default:"fks.bars"`
		Signals    string `yaml:"signals" default:"fks.component-signals"`
		Outcomes   string `yaml:"outcomes" default:"fks.outcomes"`
		Composites string `yaml:"composites" default:"fks.composites"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"5ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"fks-engine"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"fks.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"fks"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert" default:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type Redis struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix" default:"fks:"`
	StateTTL  time.Duration `yaml:"state_ttl" default:"10m"`
	LocalSize int           `yaml:"local_size" default:"1000"`
	Spool     Spool         `yaml:"spool"`
}

// Spool retries failed journal writes through a redis list.
type Spool struct {
	Enabled    bool          `yaml:"enabled"`
	Workers    int           `yaml:"workers" default:"1"`
	RetryLimit int           `yaml:"retry_limit" default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
}

// Analytics configures the remote model component.
type Analytics struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout" default:"3s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1m"`
	Breaker      struct {
		MaxRequests      uint32        `yaml:"max_requests" default:"3"`
		Interval         time.Duration `yaml:"interval" default:"60s"`
		Timeout          time.Duration `yaml:"timeout" default:"30s"`
		ConsecutiveFails uint32        `yaml:"consecutive_fails" default:"3"`
	} `yaml:"breaker"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// defaults first so explicit false/zero values in the file survive
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Markets {
		if err := defaults.Set(&c.Markets[i]); err != nil {
			return nil, fmt.Errorf("apply market defaults: %w", err)
		}
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, and then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FKS_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("FKS_SYMBOLS"); v != "" {
		c.Engine.Symbols = util.SplitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := os.Getenv("ANALYTICS_URL"); v != "" {
		c.Analytics.URL = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols cannot be empty")
	}
	if c.Engine.MinComponentAgreement < 1 {
		return fmt.Errorf("engine.min_component_agreement must be >= 1, got %d", c.Engine.MinComponentAgreement)
	}
	if c.Engine.ConsensusThreshold <= 0 || c.Engine.ConsensusThreshold > 1 {
		return fmt.Errorf("engine.consensus_threshold must be in (0,1], got %v", c.Engine.ConsensusThreshold)
	}
	if c.Engine.MinQuality < 0 || c.Engine.MinQuality > 1 {
		return fmt.Errorf("engine.min_quality must be in [0,1], got %v", c.Engine.MinQuality)
	}
	if c.Engine.MaxSignalAge <= 0 {
		return fmt.Errorf("engine.max_signal_age must be positive")
	}
	if _, err := time.LoadLocation(c.Engine.SessionTimezone); err != nil {
		return fmt.Errorf("engine.session_timezone: %w", err)
	}
	for i, m := range c.Markets {
		if m.Symbol == "" {
			return fmt.Errorf("markets[%d].symbol is required", i)
		}
		if m.TickSize <= 0 {
			return fmt.Errorf("markets[%d].tick_size must be positive", i)
		}
		if !(m.VeryLow < m.Low && m.Low < m.Medium && m.Medium < m.High && m.High < m.VeryHigh) {
			return fmt.Errorf("markets[%d] (%s): volatility breakpoints must increase very_low < low < medium < high < very_high", i, m.Symbol)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when feed is enabled")
	}
	if c.Analytics.Enabled && c.Analytics.URL == "" {
		return fmt.Errorf("analytics.url is required when analytics is enabled")
	}
	return nil
}

