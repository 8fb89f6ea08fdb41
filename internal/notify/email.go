// internal/notify/email.go
package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// EmailNotifier delivers notifications over sendgrid. Subject lines carry
// the record identifier so recipients can find the request in the app.
type EmailNotifier struct {
	client *sendgrid.Client
	from   string
	logger *zap.Logger
}

func NewEmailNotifier(apiKey, fromAddress string, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   fromAddress,
		logger: logger,
	}
}

func (n *EmailNotifier) Notify(_ context.Context, event Event) error {
	if event.RecipientEmail == "" {
		return fmt.Errorf("no recipient email for %s notification", event.Kind)
	}

	subject, body := n.compose(event)
	message := mail.NewSingleEmail(
		mail.NewEmail("ToolForge", n.from),
		subject,
		mail.NewEmail("", event.RecipientEmail),
		body,
		fmt.Sprintf("<p>%s</p>", body),
	)

	resp, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("send email: status %d", resp.StatusCode)
	}

	n.logger.Debug("notification email sent",
		zap.String("kind", event.Kind),
		zap.String("recipient", event.RecipientEmail),
	)
	return nil
}

func (n *EmailNotifier) compose(event Event) (string, string) {
	switch event.Kind {
	case KindRequestCreated:
		return "New tool request pending approval",
			fmt.Sprintf("A tool request (%s) is waiting for your approval.", event.RequestID)
	case KindRequestApproved:
		return "Your tool request has been approved",
			fmt.Sprintf("Tool request %s was approved and the tools have been issued. Check your tools for return dates.", event.RequestID)
	case KindRequestRejected:
		return "Your tool request has been rejected",
			fmt.Sprintf("Tool request %s was rejected. Reason: %s", event.RequestID, event.Outcome)
	case KindExtensionDecided:
		return "Extension request decision",
			fmt.Sprintf("Your extension request for issuance %s was %s.", event.IssuanceID, event.Outcome)
	case KindToolsOverdue:
		return "Overdue tools in your factory",
			fmt.Sprintf("Overdue issuances need attention: %s", event.Outcome)
	default:
		return "ToolForge notification", event.Outcome
	}
}
