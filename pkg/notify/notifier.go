package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier is told when a site's first audit completes. Delivery is
// best-effort: the pipeline logs a failed notification and moves on.
type Notifier interface {
	NotifyFirstAuditComplete(ctx context.Context, siteID string) error
}

// LogNotifier records the event in the application log. It stands in
// wherever no external delivery channel is configured.
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

// NotifyFirstAuditComplete logs the first-audit event.
func (n *LogNotifier) NotifyFirstAuditComplete(_ context.Context, siteID string) error {
	n.log.WithField("site_id", siteID).Info("First audit complete")
	return nil
}
