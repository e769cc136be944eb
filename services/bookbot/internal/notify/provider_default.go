//go:build !protogen

package notify

import "log/slog"

type Config struct {
	WebhookURL   string
	WebhookToken string
	GRPCAddr     string
}

func NewGateway(logger *slog.Logger, cfg Config) (Gateway, error) {
	if cfg.WebhookURL == "" {
		logger.Warn("no chat push channel configured, messages will be dropped")
		return NewNoopGateway(), nil
	}
	return NewWebhookGateway(cfg.WebhookURL, cfg.WebhookToken), nil
}
