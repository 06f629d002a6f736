package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv        string `yaml:"app_env"`
	HTTPAddr      string `yaml:"http_addr"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	// Provider order for URL inputs: the fast provider gets the url-direct
	// plan, the capable provider gets the html-fallback plan.
	FastProvider    string `yaml:"fast_provider"`
	CapableProvider string `yaml:"capable_provider"`

	DailyQuota     int `yaml:"daily_quota"`
	TaskMaxRetries int `yaml:"task_max_retries"`

	// Retry/backoff parameters, centralized here and handed to the retry
	// policy rather than re-derived at call sites.
	TextMaxAttempts  int           `yaml:"text_max_attempts"`
	ImageMaxAttempts int           `yaml:"image_max_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`

	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	OverallTimeout time.Duration `yaml:"overall_timeout"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8082"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getenv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),

		FastProvider:    getenv("FAST_PROVIDER", "gemini"),
		CapableProvider: getenv("CAPABLE_PROVIDER", "anthropic"),

		DailyQuota:     getenvInt("DAILY_QUOTA", 50),
		TaskMaxRetries: getenvInt("TASK_MAX_RETRIES", 3),

		TextMaxAttempts:  getenvInt("TEXT_MAX_ATTEMPTS", 3),
		ImageMaxAttempts: getenvInt("IMAGE_MAX_ATTEMPTS", 2),
		RetryBaseDelay:   getenvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:    getenvDuration("RETRY_MAX_DELAY", 30*time.Second),

		FetchTimeout:   getenvDuration("FETCH_TIMEOUT", 30*time.Second),
		OverallTimeout: getenvDuration("OVERALL_TIMEOUT", 90*time.Second),
	}

	// Optional YAML overlay for values that are awkward as env vars.
	// Env defaults above stay in effect for any field the file omits.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			panic(fmt.Errorf("config file %s: %w", path, err))
		}
	}

	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
