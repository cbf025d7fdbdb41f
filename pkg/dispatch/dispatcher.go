// Package dispatch renders and sends notification emails.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/mail"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
)

// Message is a fully rendered email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	BodyHTML string
	BodyText string
	// ReferenceID correlates the provider's record with the job.
	ReferenceID string
}

// Sender delivers a rendered message. Implementations classify their errors
// with apperr: PermanentRecipient for addresses that can never succeed,
// TransientDependency for everything else.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const defaultSubject = "A quick check-in from your wellbeing team"

var bodyTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.5;">
<p>Hi {{.Name}},</p>
<p>{{.Message}}</p>
<p>Reply to our chat assistant whenever you are ready. Your answers stay confidential.</p>
<p>Wellbeing Team</p>
</body>
</html>`))

type Dispatcher struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker[struct{}]
	subject string
	logger  *slog.Logger
}

type Option func(*Dispatcher)

func WithSubject(subject string) Option {
	return func(d *Dispatcher) { d.subject = subject }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[struct{}]) Option {
	return func(d *Dispatcher) { d.breaker = cb }
}

func New(sender Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		breaker: NewBreaker("email-sender"),
		subject: defaultSubject,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewBreaker trips after five consecutive transport failures. Rejected
// recipients do not count: they say nothing about the provider's health.
func NewBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.Retryable(err)
		},
	})
}

// Dispatch renders the notification and hands it to the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, p job.NotificationPayload) error {
	if p.Email == "" {
		return apperr.PermanentRecipient(fmt.Sprintf("employee %s has no email address", p.EmpID), nil)
	}
	addr, err := mail.ParseAddress(p.Email)
	if err != nil {
		return apperr.PermanentRecipient(fmt.Sprintf("invalid email address for employee %s", p.EmpID), err)
	}

	name := p.EmployeeName
	if name == "" {
		name = "there"
	}
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, struct{ Name, Message string }{name, p.Message}); err != nil {
		return apperr.New(apperr.KindInternal, "failed to render notification", err)
	}

	msg := Message{
		To:          addr.Address,
		ToName:      p.EmployeeName,
		Subject:     d.subject,
		BodyHTML:    body.String(),
		BodyText:    fmt.Sprintf("Hi %s,\n\n%s\n\nWellbeing Team", name, p.Message),
		ReferenceID: jobID,
	}

	_, err = d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Transient("email sender circuit open", err)
	}
	if err != nil {
		// Unclassified sender errors are transport failures.
		if apperr.KindOf(err) == apperr.KindInternal {
			return apperr.Transient("failed to send notification", err)
		}
		return err
	}

	d.logger.Info("notification sent", "job_id", jobID, "emp_id", p.EmpID)
	return nil
}

// LogSender writes messages to the log instead of sending them. Used for
// local development.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info("email (log sender)", "to", msg.To, "subject", msg.Subject, "reference_id", msg.ReferenceID, "body", msg.BodyText)
	return nil
}
