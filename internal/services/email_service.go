package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/springboard/internal/models"
	pkglogger "github.com/BradenHooton/springboard/pkg/logger"
)

// Notifier sends account lifecycle emails. Implementations must be safe for
// concurrent use.
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, email, name string) error
}

const welcomeSendTimeout = 10 * time.Second

// welcomeMailer sends welcome emails in the background so account creation
// never waits on the mail provider. Delivery problems are logged only.
type welcomeMailer struct {
	notifier Notifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func newWelcomeMailer(n Notifier, logger *slog.Logger) *welcomeMailer {
	return &welcomeMailer{notifier: n, logger: logger}
}

func (m *welcomeMailer) send(ctx context.Context, user *models.User) {
	if m.notifier == nil {
		return
	}
	userID, email, name := user.ID, user.Email, user.FullName
	ctx = context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, welcomeSendTimeout)
		defer cancel()

		if err := m.notifier.SendWelcomeEmail(ctx, email, name); err != nil {
			m.logger.Warn("welcome email not sent", slog.String("user_id", userID), slog.Any("error", err))
		}
	}()
}

func (m *welcomeMailer) wait() {
	m.wg.Wait()
}

// sesSender is the subset of the SES client used here.
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends emails using AWS SES
type SESNotifier struct {
	client      sesSender
	fromAddress string
	appURL      string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for region.
func NewSESNotifier(ctx context.Context, region, fromAddress, appURL string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESNotifier(ses.NewFromConfig(cfg), fromAddress, appURL, logger), nil
}

func newSESNotifier(client sesSender, fromAddress, appURL string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		appURL:      appURL,
		logger:      logger,
	}
}

// SendWelcomeEmail greets a newly created account
func (s *SESNotifier) SendWelcomeEmail(ctx context.Context, email, name string) error {
	greeting := "Welcome!"
	if name != "" {
		greeting = fmt.Sprintf("Welcome, %s!", name)
	}

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>%s</h1>
        <p>Your account is ready. You can sign in at any time:</p>
        <p><a href="%s/login">%s/login</a></p>
        <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
    </div>
</body>
</html>
`, html.EscapeString(greeting), html.EscapeString(s.appURL), html.EscapeString(s.appURL))

	textBody := fmt.Sprintf(`%s

Your account is ready. You can sign in at any time:
%s/login

This is an automated message. Please do not reply to this email.
`, greeting, s.appURL)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Welcome to Springboard")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send welcome email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("welcome email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogNotifier records emails in the log instead of sending them. Used when
// email delivery is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendWelcomeEmail(ctx context.Context, email, _ string) error {
	n.logger.InfoContext(ctx, "email delivery disabled, skipping welcome email",
		slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}
