package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// NoopNotifier используется, когда SMTP не настроен: письма не уходят, флаги уведомлений не ставятся.
type NoopNotifier struct {
	logger *log.Entry
}

// NewNoopNotifier создаёт notifier-заглушку.
func NewNoopNotifier(logger *log.Entry) *NoopNotifier {
	if logger == nil {
		logger = log.WithField("component", "noop-notifier")
	}
	return &NoopNotifier{logger: logger}
}

// Send ничего не отправляет и всегда возвращает false.
func (n *NoopNotifier) Send(_ context.Context, to, subject, _ string) bool {
	n.logger.WithFields(log.Fields{
		"to":      to,
		"subject": subject,
	}).Debug("email delivery disabled")
	return false
}

var _ domain.Notifier = (*NoopNotifier)(nil)
