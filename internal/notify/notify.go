// Package notify delivers user-facing notifications (consent lifecycle,
// password reset OTPs). Delivery is best-effort: a failed notification is
// logged and counted, never propagated to the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Template keys. Message bodies are rendered by the concrete notifier.
const (
	TemplateConsentRequested = "consent_requested"
	TemplateConsentApproved  = "consent_approved"
	TemplateConsentRejected  = "consent_rejected"
	TemplateConsentRevoked   = "consent_revoked"
	TemplatePasswordOTP      = "password_otp"
)

// Message is one notification to one recipient.
type Message struct {
	To       string
	Template string
	Data     map[string]any
}

// Notifier delivers a single message synchronously.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Outcome callback lets the caller count deliveries without importing the
// metrics package here.
type Outcome func(template string, ok bool)

// Dispatcher wraps a Notifier with bounded async fan-out. Dispatch never
// blocks the caller beyond channel admission and never returns an error.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	outcome  Outcome

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(notifier Notifier, logger *slog.Logger, outcome Outcome) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		logger:   logger,
		outcome:  outcome,
		queue:    make(chan Message, 64),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues a message. A full queue drops the message rather than
// slowing down the operation that produced it.
func (d *Dispatcher) Dispatch(_ context.Context, msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, message dropped",
			"template", msg.Template, "to", msg.To)
		if d.outcome != nil {
			d.outcome(msg.Template, false)
		}
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := d.notifier.Send(ctx, msg)
		cancel()
		if err != nil {
			d.logger.Warn("notification delivery failed",
				"template", msg.Template, "to", msg.To, "error", err)
		}
		if d.outcome != nil {
			d.outcome(msg.Template, err == nil)
		}
	}
}

// Close drains queued messages and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
		select {
		case <-d.done:
		case <-time.After(5 * time.Second):
			d.logger.Warn("notification dispatcher close timed out")
		}
	})
}

// LogNotifier writes notifications to the structured log. It is the default
// when SMTP is not configured, and doubles as the demo OTP delivery channel.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		"to", msg.To,
		"template", msg.Template,
		"subject", subjectFor(msg.Template),
		"body", renderBody(msg),
	)
	return nil
}

func subjectFor(template string) string {
	switch template {
	case TemplateConsentRequested:
		return "New access request for your data"
	case TemplateConsentApproved:
		return "Your access request was approved"
	case TemplateConsentRejected:
		return "Your access request was rejected"
	case TemplateConsentRevoked:
		return "Access to shared data was revoked"
	case TemplatePasswordOTP:
		return "Your password reset code"
	default:
		return "Notification"
	}
}

func renderBody(msg Message) string {
	switch msg.Template {
	case TemplateConsentRequested:
		return fmt.Sprintf("%v requested access to %q for purpose %q.",
			msg.Data["requesterName"], msg.Data["dataTitle"], msg.Data["purpose"])
	case TemplateConsentApproved:
		return fmt.Sprintf("Your request for %q was approved. Access expires %v.",
			msg.Data["dataTitle"], msg.Data["expiresAt"])
	case TemplateConsentRejected:
		return fmt.Sprintf("Your request for %q was rejected.", msg.Data["dataTitle"])
	case TemplateConsentRevoked:
		return fmt.Sprintf("Access to %q was revoked by the owner.", msg.Data["dataTitle"])
	case TemplatePasswordOTP:
		return fmt.Sprintf("Your one-time code is %v. It expires at %v.",
			msg.Data["otp"], msg.Data["expiresAt"])
	default:
		return fmt.Sprintf("%v", msg.Data)
	}
}
