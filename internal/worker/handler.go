// Package worker processes messages from the auth event and email queues.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/config"
	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
	"github.com/oksasatya/go-ddd-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/go-ddd-auth/pkg/mailer/templates"
)

// ErrMalformed marks messages that can never be processed. They are dropped
// instead of requeued.
var ErrMalformed = errors.New("malformed message")

// MailSender is satisfied by mailer.Mailgun.
type MailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// AuditSink is satisfied by elasticsearch.AuditIndex.
type AuditSink interface {
	Index(ctx context.Context, e event.Event) error
}

// Handler turns queue messages into audit records and emails. A nil Audit or
// Mail disables that side effect.
type Handler struct {
	Config *config.Config
	Audit  AuditSink
	Mail   MailSender
	Logger *logrus.Logger

	SendTimeout time.Duration
}

func NewHandler(cfg *config.Config, audit AuditSink, mail MailSender, logger *logrus.Logger) *Handler {
	return &Handler{Config: cfg, Audit: audit, Mail: mail, Logger: logger, SendTimeout: 15 * time.Second}
}

// HandleEvent processes one JSON encoded event.Event.
func (h *Handler) HandleEvent(ctx context.Context, body []byte) error {
	var e event.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.ID == "" || e.Type == "" {
		return fmt.Errorf("%w: event without id or type", ErrMalformed)
	}
	log := h.Logger.WithFields(logrus.Fields{"event_id": e.ID, "type": e.Type, "user_id": e.UserID})

	if h.Audit != nil {
		if err := h.Audit.Index(ctx, e); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}

	job, ok := h.notification(e)
	if !ok {
		log.Debug("event processed")
		return nil
	}
	if err := h.deliver(ctx, job); err != nil {
		return err
	}
	log.WithField("template", job.Template).Info("notification sent")
	return nil
}

// notification maps events that warrant an email to a job.
func (h *Handler) notification(e event.Event) (mailer.EmailJob, bool) {
	if h.Mail == nil || h.Config == nil || !h.Config.MailSendEnabled {
		return mailer.EmailJob{}, false
	}
	to := e.Payload["email"]
	if to == "" {
		return mailer.EmailJob{}, false
	}
	switch e.Type {
	case event.UserRegistered:
		return mailer.EmailJob{
			To:       to,
			Template: mailtpl.Welcome,
			Data:     mailtpl.NewWelcomeData(h.Config, e.Payload["username"], to),
		}, true
	case event.PasswordChanged:
		return mailer.EmailJob{
			To:       to,
			Template: mailtpl.PasswordChanged,
			Data:     mailtpl.NewPasswordChangedData(h.Config, "", to, mailtpl.WithTime(e.Timestamp)),
		}, true
	}
	return mailer.EmailJob{}, false
}

// HandleEmailJob processes one JSON encoded mailer.EmailJob.
func (h *Handler) HandleEmailJob(ctx context.Context, body []byte) error {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(job.To) == "" {
		return fmt.Errorf("%w: email job without recipient", ErrMalformed)
	}
	if h.Mail == nil || h.Config == nil || !h.Config.MailSendEnabled {
		h.Logger.WithField("template", job.Template).Info("mail sending disabled; job dropped")
		return nil
	}
	if err := h.deliver(ctx, job); err != nil {
		return err
	}
	h.Logger.WithField("template", job.Template).Info("email sent")
	return nil
}

func (h *Handler) deliver(ctx context.Context, job mailer.EmailJob) error {
	helpers.EnsureRecipientAndEmail(&job)

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		s, t, hm, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			return fmt.Errorf("%w: render %s: %v", ErrMalformed, job.Template, err)
		}
		subject, text, html = s, t, hm
	}
	if subject == "" || (text == "" && html == "") {
		return fmt.Errorf("%w: empty email", ErrMalformed)
	}

	c, cancel := context.WithTimeout(ctx, h.SendTimeout)
	defer cancel()
	if err := h.Mail.Send(c, job.To, subject, text, html); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
