package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"text/template"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "job-created"}}Dear {{.name}},

We received your booking #{{.job_id}} for a {{.language}} interpreter on {{.due}}. We will let you know as soon as an interpreter accepts it.
{{end}}
{{define "job-accepted"}}Dear {{.name}},

An interpreter accepted booking #{{.job_id}} ({{.language}}, {{.duration}}min, {{.due}}).
{{end}}
{{define "job-changed-date"}}Dear {{.name}},

Booking #{{.job_id}} was moved from {{.old_due}} to {{.due}}.
{{end}}
{{define "job-changed-lang"}}Dear {{.name}},

The language of booking #{{.job_id}} changed from {{.old_language}} to {{.language}}.
{{end}}
{{define "job-changed-translator-customer"}}Dear {{.name}},

A new interpreter was assigned to booking #{{.job_id}} on {{.due}}.
{{end}}
{{define "job-changed-translator-old-translator"}}Dear {{.name}},

You are no longer assigned to booking #{{.job_id}} on {{.due}}.
{{end}}
{{define "job-changed-translator-new-translator"}}Dear {{.name}},

You have been assigned booking #{{.job_id}} ({{.language}}, {{.duration}}min, {{.due}}).
{{end}}
{{define "job-status-changed"}}Dear {{.name}},

The status of booking #{{.job_id}} changed from {{.old_status}} to {{.status}}.
{{end}}
{{define "job-cancelled-translator"}}Dear {{.name}},

The customer cancelled booking #{{.job_id}} ({{.language}}, {{.duration}}min, {{.due}}).
{{end}}
{{define "session-ended"}}Dear {{.name}},

The interpretation for booking #{{.job_id}} has ended. Session time: {{.session_time}}. This information is the basis for your {{.for_text}}.
{{end}}
`))

// RenderMail executes the body template of a mail
func RenderMail(m Mail) (string, error) {
	data := make(map[string]any, len(m.Data)+1)
	for k, v := range m.Data {
		data[k] = v
	}
	data["name"] = m.ToName

	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, m.Template, data); err != nil {
		return "", fmt.Errorf("failed to render mail template %q: %w", m.Template, err)
	}
	return buf.String(), nil
}

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer renders templates and hands messages to an SMTP relay
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
	send     SendFunc
}

// NewSMTPMailer creates a mailer. Auth is only used when username is set.
func NewSMTPMailer(host string, port int, username, password, from, fromName string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		auth:     auth,
		from:     from,
		fromName: fromName,
		send:     smtp.SendMail,
	}
}

// WithSendFunc replaces the SMTP transport
func (m *SMTPMailer) WithSendFunc(fn SendFunc) *SMTPMailer {
	m.send = fn
	return m
}

// Send renders and delivers one mail. smtp.SendMail takes no context, so a
// cancelled context only stops sends that have not started.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mail.ToEmail == "" {
		return fmt.Errorf("mail: recipient address is required")
	}

	body, err := RenderMail(mail)
	if err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", mime.QEncoding.Encode("utf-8", m.fromName)+" <"+m.from+">")
	fmt.Fprintf(&msg, "To: %s\r\n", mime.QEncoding.Encode("utf-8", mail.ToName)+" <"+mail.ToEmail+">")
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", mail.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := m.send(m.addr, m.auth, m.from, []string{mail.ToEmail}, msg.Bytes()); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
