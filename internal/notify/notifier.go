package notify

import (
	"github.com/hashicorp/go-multierror"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// Notifier is the fire-and-forget notification channel. Send failures are
// reported but never handled beyond logging; the pipeline must not depend on
// a notification arriving.
type Notifier interface {
	Notify(subject, body string) error
}

// MultiNotifier fans a notification out to several channels
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends through every given channel
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends through all channels and collects the failures
func (m *MultiNotifier) Notify(subject, body string) error {
	var result *multierror.Error

	for _, n := range m.notifiers {
		if err := n.Notify(subject, body); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// NopNotifier discards notifications, useful when no channel is configured
type NopNotifier struct{}

// Notify does nothing
func (NopNotifier) Notify(subject, body string) error {
	return nil
}

// BestEffort sends a notification and only logs a failure. This is the form
// every pipeline call site uses.
func BestEffort(n Notifier, l logger.Logger, subject, body string) {
	if err := n.Notify(subject, body); err != nil {
		l.Error("Failed to send notification", "error", err, "subject", subject)
	}
}
