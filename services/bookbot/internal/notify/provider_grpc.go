//go:build protogen

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/twclinics/groupbook/libs/grpcx"
	notifyv1 "github.com/twclinics/groupbook/protos/gen/notify/v1"
)

type Config struct {
	WebhookURL   string
	WebhookToken string
	GRPCAddr     string
}

type grpcGateway struct {
	client notifyv1.NotifyServiceClient
}

func NewGateway(logger *slog.Logger, cfg Config) (Gateway, error) {
	if cfg.GRPCAddr == "" {
		if cfg.WebhookURL == "" {
			return NewNoopGateway(), nil
		}
		return NewWebhookGateway(cfg.WebhookURL, cfg.WebhookToken), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, cfg.GRPCAddr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc notify gateway unavailable, using webhook", "err", err)
		return NewWebhookGateway(cfg.WebhookURL, cfg.WebhookToken), nil
	}

	logger.Info("grpc notify gateway enabled", "addr", cfg.GRPCAddr)
	return &grpcGateway{client: notifyv1.NewNotifyServiceClient(conn)}, nil
}

func (g *grpcGateway) ProviderID() string {
	return "chat-grpc"
}

func (g *grpcGateway) Push(ctx context.Context, recipientID string, msg Message) error {
	_, err := g.client.PushMessage(ctx, &notifyv1.PushMessageRequest{
		RecipientId: recipientID,
		Text:        msg.Text,
	})
	return err
}
