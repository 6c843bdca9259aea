package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Market    MarketConfig    `mapstructure:"market"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// MarketConfig describes the upstream quote provider.
type MarketConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Symbols        []string      `mapstructure:"symbols"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	BatchCallDelay time.Duration `mapstructure:"batch_call_delay"`
}

// SchedulerConfig drives the ingestion loop and the snapshot cache.
type SchedulerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// StreamConfig is consumed by the watcher's client stream.
type StreamConfig struct {
	URL               string        `mapstructure:"url"`
	BufferSize        int           `mapstructure:"buffer_size"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	MaxReconnectTries int           `mapstructure:"max_reconnect_tries"`
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type GeneratorConfig struct {
	Port          string `mapstructure:"port"`
	ThrottleEvery int    `mapstructure:"throttle_every"` // 0 disables throttled answers
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "market.base_url", "market.symbols", "market.fetch_timeout", "market.batch_call_delay")
	bindEnv(v, "scheduler.interval", "scheduler.batch_size", "scheduler.batch_delay", "scheduler.cache_ttl")
	bindEnv(v, "stream.url", "stream.buffer_size", "stream.reconnect_base", "stream.reconnect_max", "stream.max_reconnect_tries")
	bindEnv(v, "processor.num_workers")
	bindEnv(v, "generator.port", "generator.throttle_every")

	// The provider key keeps its historical variable name as a fallback.
	if err := v.BindEnv("market.api_key", "MARKET_API_KEY", "ALPHA_VANTAGE_API_KEY"); err != nil {
		log.Printf("Could not bind env var for key market.api_key: %v", err)
	}

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Market.Symbols = splitList(cfg.Market.Symbols, strings.ToUpper)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers, nil)

	// 6. Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":4000")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "stock-processor-group")

	v.SetDefault("market.api_key", "")
	v.SetDefault("market.base_url", "https://www.alphavantage.co/query")
	v.SetDefault("market.symbols", []string{
		"AAPL", "MSFT", "GOOGL", "AMZN", "META",
		"RELIANCE.BSE", "TCS.BSE", "INFY.BSE",
	})
	v.SetDefault("market.fetch_timeout", 10*time.Second)
	v.SetDefault("market.batch_call_delay", 200*time.Millisecond)

	// Free tier allows 5 calls per minute, hence one symbol every ~13s.
	v.SetDefault("scheduler.interval", 60*time.Second)
	v.SetDefault("scheduler.batch_size", 1)
	v.SetDefault("scheduler.batch_delay", 13*time.Second)
	v.SetDefault("scheduler.cache_ttl", 5*time.Second)

	v.SetDefault("stream.url", "ws://localhost:4000/ws")
	v.SetDefault("stream.buffer_size", 100)
	v.SetDefault("stream.reconnect_base", time.Second)
	v.SetDefault("stream.reconnect_max", 30*time.Second)
	v.SetDefault("stream.max_reconnect_tries", 5)

	v.SetDefault("processor.num_workers", 4)

	v.SetDefault("generator.port", ":8090")
	v.SetDefault("generator.throttle_every", 0)
}

// Validate reports the first setting that would make a component misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("kafka brokers cannot be empty")
	case len(c.Market.Symbols) == 0:
		return fmt.Errorf("market symbols cannot be empty")
	case c.Scheduler.Interval <= 0:
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	case c.Scheduler.BatchSize < 1:
		return fmt.Errorf("scheduler batch size must be at least 1, got %d", c.Scheduler.BatchSize)
	case c.Scheduler.BatchDelay < 0:
		return fmt.Errorf("scheduler batch delay cannot be negative")
	case c.Scheduler.CacheTTL <= 0:
		return fmt.Errorf("cache ttl must be positive, got %s", c.Scheduler.CacheTTL)
	case c.Stream.BufferSize < 1:
		return fmt.Errorf("stream buffer size must be at least 1, got %d", c.Stream.BufferSize)
	case c.Stream.ReconnectBase <= 0 || c.Stream.ReconnectMax < c.Stream.ReconnectBase:
		return fmt.Errorf("stream reconnect delays are inconsistent: base=%s max=%s", c.Stream.ReconnectBase, c.Stream.ReconnectMax)
	case c.Stream.MaxReconnectTries < 1:
		return fmt.Errorf("stream max reconnect tries must be at least 1, got %d", c.Stream.MaxReconnectTries)
	case c.Processor.NumWorkers < 1:
		return fmt.Errorf("processor needs at least one worker")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

// splitList accepts both real lists and a single comma separated env value.
func splitList(in []string, normalize func(string) string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if normalize != nil {
				part = normalize(part)
			}
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
