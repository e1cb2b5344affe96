package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/tradeclarity/backend/src/config"
	"github.com/username/tradeclarity/backend/src/logger"
)

func NewEmailService() EmailService {
	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendAnalyticsSummary(toEmail, subject, body string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)

	message := s.mg.NewMessage(from, subject, body, toEmail)
	message.AddTag("analytics-summary")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send analytics summary via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for analytics summary: %w. Response: %s", err, resp)
	}

	logger.L.Info("Analytics summary sent successfully via Mailgun", "to", toEmail, "id", id)
	return nil
}

type MockEmailService struct{}

func (m *MockEmailService) SendAnalyticsSummary(toEmail, subject, body string) error {
	logger.L.Info("MockEmailService: Would send analytics summary.", "to", toEmail, "subject", subject, "bodyLength", len(body))
	return nil
}
