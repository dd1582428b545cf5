package channel

import "time"

// EmailConfig configures the Postmark email sender.
// Without tokens the file sender is used instead.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"notifications@localhost"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	HTMLBody             bool   `env:"EMAIL_HTML_BODY" envDefault:"true"`
	DevDir               string `env:"DEV_MAIL_DIR" envDefault:"./tmp/outbox"`
}

// Enabled reports whether Postmark credentials are configured.
func (c EmailConfig) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

// SMSConfig configures the HTTP SMS gateway sender.
// Without a gateway URL the file sender writes into DevDir.
type SMSConfig struct {
	GatewayURL       string        `env:"SMS_GATEWAY_URL"`
	APIKey           string        `env:"SMS_GATEWAY_API_KEY"`
	From             string        `env:"SMS_FROM"`
	Timeout          time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
	MaxRetries       int           `env:"SMS_MAX_RETRIES" envDefault:"2"`
	FailureThreshold int           `env:"SMS_CIRCUIT_FAILURES" envDefault:"5"`
	RecoveryTimeout  time.Duration `env:"SMS_CIRCUIT_RECOVERY" envDefault:"30s"`
	DevDir           string        `env:"SMS_DEV_DIR" envDefault:"./tmp/sms-outbox"`
}

// Enabled reports whether a gateway URL is configured.
func (c SMSConfig) Enabled() bool {
	return c.GatewayURL != ""
}
