package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/tappay/internal/models"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertNotifier emails the security team when an account is locked
type SESAlertNotifier struct {
	client     SESClient
	sender     string
	recipients []string
	logger     *slog.Logger
}

func NewSESAlertNotifier(ctx context.Context, region, sender string, recipients []string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESAlertNotifierWithClient(ses.NewFromConfig(cfg), sender, recipients, logger), nil
}

func NewSESAlertNotifierWithClient(client SESClient, sender string, recipients []string, logger *slog.Logger) *SESAlertNotifier {
	return &SESAlertNotifier{client: client, sender: sender, recipients: recipients, logger: logger}
}

func (n *SESAlertNotifier) NotifyAccountLocked(ctx context.Context, user *models.User, attempts int) error {
	subject := fmt.Sprintf("[tappay] account locked: %s", user.ID)

	var body strings.Builder
	fmt.Fprintf(&body, "Account %s was locked after %d consecutive invalid PIN attempts.\n\n", user.ID, attempts)
	fmt.Fprintf(&body, "Email: %s\n", pkglogger.SanitizedEmail(user.Email))
	if user.LastFailedAuthAt != nil {
		fmt.Fprintf(&body, "Last failure: %s\n", user.LastFailedAuthAt.UTC().Format(time.RFC3339))
	}
	body.WriteString("\nThe account stays locked until an administrator unlocks it.\n")

	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.sender),
		Destination: &types.Destination{ToAddresses: n.recipients},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body.String())},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send lock alert: %w", err)
	}

	n.logger.InfoContext(ctx, "account locked alert sent",
		slog.String("user_id", user.ID),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
