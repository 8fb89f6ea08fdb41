// internal/notify/notifier.go
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event kinds emitted by the inventory service.
const (
	KindRequestCreated   = "request.created"
	KindRequestApproved  = "request.approved"
	KindRequestRejected  = "request.rejected"
	KindExtensionDecided = "extension.decided"
	KindToolsOverdue     = "tools.overdue"
)

// Event is the fire-and-forget notification contract: who to tell, about
// which record, with what outcome. Content and delivery are up to the
// implementation.
type Event struct {
	RecipientID    uuid.UUID
	RecipientEmail string
	Kind           string
	RequestID      uuid.UUID
	IssuanceID     uuid.UUID
	Outcome        string
}

// Notifier delivers events to recipients. Implementations must not block the
// calling operation on delivery problems; a failed notification is the
// implementation's problem to report.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes notifications to the structured log. It is the default
// when no delivery channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info("notification",
		zap.String("kind", event.Kind),
		zap.String("recipient", event.RecipientID.String()),
		zap.String("request_id", event.RequestID.String()),
		zap.String("issuance_id", event.IssuanceID.String()),
		zap.String("outcome", event.Outcome),
	)
	return nil
}
