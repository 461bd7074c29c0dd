// Package notify e-mails moderators when a report is filed.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tbourn/go-meal-backend/internal/config"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// Mailer sends report notifications through SendGrid.
type Mailer struct {
	send       func(ctx context.Context, m *mail.SGMailV3) (int, string, error)
	from       string
	moderators []string
}

// New returns a Mailer, or nil when SendGrid is not configured or there is
// nobody to notify. A nil *Mailer is a valid no-op notifier.
func New(cfg config.MailConfig) *Mailer {
	if cfg.SendGridAPIKey == "" || len(cfg.Moderators) == 0 {
		return nil
	}
	c := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	return &Mailer{
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := c.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
		from:       cfg.From,
		moderators: cfg.Moderators,
	}
}

const reportPlain = `A new report was filed.

Target:   {{.TargetGroupKey}}
Reason:   {{.Reason}}{{if .ReasonOther}} ({{.ReasonOther}}){{end}}
Reporter: {{.ReportedBy}}
At:       {{.ReportedAt.Format "2006-01-02 15:04:05 MST"}}
Report:   {{.ID}}
`

var reportPlainTemplate = template.Must(template.New("report").Parse(reportPlain))

// NotifyReport mails every moderator about r.
func (m *Mailer) NotifyReport(ctx context.Context, r *domain.Report) error {
	if m == nil {
		return nil
	}
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail("Meal Board", m.from))
	message.Subject = "New report: " + r.Reason

	personalization := mail.NewPersonalization()
	for _, to := range m.moderators {
		personalization.AddTos(mail.NewEmail("", to))
	}
	message.AddPersonalizations(personalization)

	textContent := &bytes.Buffer{}
	if err := reportPlainTemplate.Execute(textContent, r); err != nil {
		return fmt.Errorf("while templating report e-mail: %w", err)
	}
	message.AddContent(mail.NewContent("text/plain", textContent.String()))

	code, body, err := m.send(ctx, message)
	if err != nil {
		return fmt.Errorf("while sending mail through SendGrid: %w", err)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", code, body)
	}
	return nil
}
