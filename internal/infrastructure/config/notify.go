package config

// NotifyConfig holds the out-of-band notification settings. An empty URL
// disables delivery.
type NotifyConfig struct {
	// WebhookURL receives multipart POSTs with a message and optional photo
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}
