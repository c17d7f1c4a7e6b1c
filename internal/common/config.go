package common

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServiceName string `ignored:"true"`

	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	JobsTopic      string   `envconfig:"JOBS_TOPIC" default:"notifications.jobs"`
	RetryTopic     string   `envconfig:"RETRY_TOPIC" default:"notifications.retry"`
	DLQTopic       string   `envconfig:"DLQ_TOPIC" default:"notifications.dlq"`
	JobEventsTopic string   `envconfig:"JOB_EVENTS_TOPIC" default:"notifications.events"`

	Concurrency    int           `envconfig:"WORKER_CONCURRENCY" default:"10"`
	MaxJobAttempts int           `envconfig:"MAX_JOB_ATTEMPTS" default:"5"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5m"`
	ClaimTimeout   time.Duration `envconfig:"CLAIM_TIMEOUT" default:"1m"`

	TemplateDir string `envconfig:"TEMPLATE_DIR" default:"templates"`

	EmailEndpoint string `envconfig:"EMAIL_ENDPOINT" default:"https://api.sendgrid.com/v3"`
	EmailAPIKey   string `envconfig:"EMAIL_API_KEY"`
	EmailFrom     string `envconfig:"EMAIL_FROM"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	SMSEndpoint   string `envconfig:"SMS_ENDPOINT" default:"https://api.twilio.com"`
	SMSAccountSID string `envconfig:"SMS_ACCOUNT_SID"`
	SMSAuthToken  string `envconfig:"SMS_AUTH_TOKEN"`
	SMSFrom       string `envconfig:"SMS_FROM"`

	PushEndpoint  string `envconfig:"PUSH_ENDPOINT" default:"https://fcm.googleapis.com"`
	PushServerKey string `envconfig:"PUSH_SERVER_KEY"`

	ChatEndpoint string `envconfig:"CHAT_ENDPOINT" default:"https://slack.com/api"`
	ChatBotToken string `envconfig:"CHAT_BOT_TOKEN"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
}

func LoadConfig(service string) (*Config, error) {
	cfg := &Config{ServiceName: service}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.Concurrency)
	}
	return cfg, nil
}
