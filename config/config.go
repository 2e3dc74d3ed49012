package config

import (
	"time"

	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/tracing"
)

type Config struct {
	AppConfig          *AppConfig
	OCRConfig          *OCRConfig
	NotificationConfig *NotificationConfig
	Logger             *logger.Config
	Tracing            *tracing.JaegerConfig
}

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"8080"`
	APIKey  string `env:"API_KEY,required"`
	// DefaultPollInterval applies to accounts that do not set their own.
	DefaultPollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	// DedupCacheSize bounds the per-session processed-message set.
	DedupCacheSize int `env:"DEDUP_CACHE_SIZE" envDefault:"10000"`
	// StatsReportSchedule drives the periodic session stats log line.
	StatsReportSchedule string `env:"CRON_SCHEDULE_STATS_REPORT" envDefault:"@every 5m"`
}

type OCRConfig struct {
	BaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	// APIKey is the process-wide fallback; per-account keys take
	// precedence.
	APIKey string `env:"OPENROUTER_API_KEY"`
	Model  string `env:"OCR_MODEL" envDefault:"google/gemini-pro-vision"`
	// Recognition calls routinely take tens of seconds for multi-page
	// documents.
	RequestTimeout time.Duration `env:"OCR_REQUEST_TIMEOUT" envDefault:"120s"`
	MaxTokensImage int           `env:"OCR_MAX_TOKENS_IMAGE" envDefault:"4000"`
	MaxTokensPDF   int           `env:"OCR_MAX_TOKENS_PDF" envDefault:"8000"`
	Referer        string        `env:"OCR_HTTP_REFERER" envDefault:"https://docrelay.local"`
	Title          string        `env:"OCR_HTTP_TITLE" envDefault:"Docrelay OCR"`
}

type NotificationConfig struct {
	MaxRetries     int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"DELIVERY_RETRY_BASE_DELAY" envDefault:"5s"`
}
