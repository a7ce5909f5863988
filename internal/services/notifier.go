package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/bastionsec/bastion/internal/models"
)

// Notifier delivers a raised alert to an external channel. Delivery is
// best effort; the alert is already durable in the store before any
// notifier runs.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *models.Alert) error
}

// WebhookNotifier posts alert JSON to a configured endpoint
type WebhookNotifier struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger,
	}
}

type webhookPayload struct {
	AlertID     string          `json:"alert_id"`
	Severity    string          `json:"severity"`
	AlertType   string          `json:"alert_type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	IPAddress   *string         `json:"ip_address,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (n *WebhookNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	payload := webhookPayload{
		AlertID:     alert.ID,
		Severity:    alert.Severity,
		AlertType:   alert.AlertType,
		Title:       alert.Title,
		Description: alert.Description,
		IPAddress:   alert.IPAddress,
		Metadata:    alert.Metadata,
		CreatedAt:   alert.CreatedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	n.logger.Info("alert delivered to webhook",
		slog.String("alert_id", alert.ID),
		slog.String("severity", alert.Severity))
	return nil
}

// SESNotifier emails the security team about critical findings via AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	teamAddress string
	logger      *slog.Logger
}

func NewSESNotifier(region, fromAddress, teamAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		teamAddress: teamAddress,
		logger:      logger,
	}, nil
}

func (n *SESNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	subject := fmt.Sprintf("[%s] %s alert: %s", alert.Severity, alert.AlertType, alert.Title)

	ip := "unknown"
	if alert.IPAddress != nil {
		ip = *alert.IPAddress
	}

	textBody := fmt.Sprintf(`A security alert was raised.

Alert ID:   %s
Severity:   %s
Type:       %s
Title:      %s
Source IP:  %s
Raised at:  %s

%s

Review it in the monitoring dashboard.
`, alert.ID, alert.Severity, alert.AlertType, alert.Title, ip,
		alert.CreatedAt.UTC().Format(time.RFC3339), alert.Description)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.teamAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("alert email sent",
		slog.String("alert_id", alert.ID),
		slog.String("message_id", *result.MessageId))
	return nil
}
