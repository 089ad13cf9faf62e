package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	UserServiceURL     string `env:"USER_SERVICE_URL,required=true"`
	TemplateServiceURL string `env:"TEMPLATE_SERVICE_URL,required=true"`
	GatewayURL         string `env:"GATEWAY_URL,required=true"`

	FCMEndpoint   string `env:"FCM_ENDPOINT,required=true"`
	FCMServerKey  string `env:"FCM_SERVER_KEY,required=true"`
	MailEndpoint  string `env:"MAIL_ENDPOINT,required=true"`
	MailAPIKey    string `env:"MAIL_API_KEY,default="`
	SMSGatewayURL string `env:"SMS_GATEWAY_URL,required=true"`

	WorkerConcurrency   int `env:"WORKER_CONCURRENCY,default=16"`
	PrefetchCount       int `env:"PREFETCH_COUNT,default=10"`
	DeliveryMaxAttempts int `env:"DELIVERY_MAX_ATTEMPTS,default=3"`
	LookupMaxAttempts   int `env:"LOOKUP_MAX_ATTEMPTS,default=2"`
	RetryBaseDelayMs    int `env:"RETRY_BASE_DELAY_MS,default=1000"`
	RetryMaxDelayMs     int `env:"RETRY_MAX_DELAY_MS,default=60000"`

	BreakerFailureThreshold int `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerOpenSeconds      int `env:"BREAKER_OPEN_SECONDS,default=30"`

	IdempotencyTTLHours int `env:"IDEMPOTENCY_TTL_HOURS,default=24"`
	ThrottlePerSec      int `env:"THROTTLE_PER_SEC,default=100"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
