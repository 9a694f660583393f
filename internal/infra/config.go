package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	// Provider credentials and endpoints. Values here seed the configuration
	// store on first run; the authoritative copy lives in the store.
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIOrg        string
	DashScopeAPIKey  string
	DashScopeModel   string
	DashScopeBaseURL string
	KlingAccessKey   string
	KlingSecretKey   string
	KlingBaseURL     string

	ConfigCacheTTL time.Duration

	// Generation façade retry policy.
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	ProviderRatePerMin int

	// Async task poller.
	TaskPollInterval time.Duration

	// Batch scheduler defaults.
	BatchInterval    time.Duration
	BatchMaxRetries  int
	BatchRetryDelay  time.Duration
	BatchAspectRatio string
	BatchDuration    int
	BatchNotify      bool
	// BatchResumeAfter is how long a batch's snapshots must stay untouched
	// before the worker treats it as abandoned and claims it.
	BatchResumeAfter time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Clone workflow. A capture URL enables the flow.
	CaptureBaseURL      string
	CloneCaptureTimeout time.Duration
	CloneMaxRetries     int

	CORSAllowedOrigins []string
	HTTPRateLimit      int
	HTTPRateWindow     time.Duration
	DefaultLocale      string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the orchestrator
// runs on in-memory stores, which degrades to "provider not configured" on a
// cold start rather than failing.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),
		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeModel:   getEnv("DASHSCOPE_MODEL", "qwen-image-plus"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		KlingAccessKey:   os.Getenv("KLING_ACCESS_KEY"),
		KlingSecretKey:   os.Getenv("KLING_SECRET_KEY"),
		KlingBaseURL:     getEnv("KLING_BASE_URL", "https://api.klingai.com"),

		ConfigCacheTTL: time.Second * time.Duration(getEnvInt("CONFIG_CACHE_TTL_SECONDS", 60)),

		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)),
		ProviderRatePerMin: getEnvInt("PROVIDER_RATE_PER_MINUTE", 30),

		TaskPollInterval: time.Second * time.Duration(getEnvInt("TASK_POLL_INTERVAL_SECONDS", 5)),

		BatchInterval:    time.Second * time.Duration(getEnvInt("BATCH_INTERVAL_SECONDS", 10)),
		BatchMaxRetries:  getEnvInt("BATCH_MAX_RETRIES", 2),
		BatchRetryDelay:  time.Second * time.Duration(getEnvInt("BATCH_RETRY_DELAY_SECONDS", 15)),
		BatchAspectRatio: getEnv("BATCH_ASPECT_RATIO", "16:9"),
		BatchDuration:    getEnvInt("BATCH_DURATION_SECONDS", 5),
		BatchNotify:      getEnvBool("BATCH_NOTIFY", true),
		BatchResumeAfter: time.Second * time.Duration(getEnvInt("BATCH_RESUME_AFTER_SECONDS", 120)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		CaptureBaseURL:      os.Getenv("CAPTURE_BASE_URL"),
		CloneCaptureTimeout: time.Second * time.Duration(getEnvInt("CLONE_CAPTURE_TIMEOUT_SECONDS", 10)),
		CloneMaxRetries:     getEnvInt("CLONE_MAX_RETRIES", 2),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPRateLimit:      getEnvInt("HTTP_RATE_LIMIT", 120),
		HTTPRateWindow:     time.Second * time.Duration(getEnvInt("HTTP_RATE_WINDOW_SECONDS", 60)),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
