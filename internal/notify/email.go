package notify

import (
	"context"
	"log"

	"github.com/shielded-scanner/internal/models"
)

// Mailer is the outbound mail collaborator. The actual transport lives
// outside this service.
type Mailer interface {
	SendNotification(ctx context.Context, to string, n *models.AlertNotification) error
}

// LogMailer is the default Mailer: it records the dispatch in the log and
// reports success. Wire a real transport in its place for production mail.
type LogMailer struct{}

// NewLogMailer creates the logging mail stub
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// SendNotification logs the would-be delivery
func (m *LogMailer) SendNotification(ctx context.Context, to string, n *models.AlertNotification) error {
	log.Printf("[Mailer] Notification %s for %s: %s", n.ID, to, n.Message)
	return nil
}
