package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// EmailNotifier sends alerts over SMTP. Recipients are a comma-separated
// list in the channel configuration; the subject line supports a template
// rendered against the alert.
type EmailNotifier struct {
	channel model.NotificationChannel
	logger  *logrus.Logger

	// test seam; defaults to smtp.SendMail
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(channel model.NotificationChannel, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		channel:  channel,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

func (en *EmailNotifier) Send(ctx context.Context, alert model.Alert) error {
	cfg := en.channel.Configuration
	host, port, from := cfg["smtp_host"], cfg["smtp_port"], cfg["from"]
	if host == "" || port == "" || from == "" {
		return &NotificationError{ChannelID: en.channel.ID, Err: fmt.Errorf("incomplete smtp configuration")}
	}

	recipients := splitRecipients(cfg["recipients"])
	if len(recipients) == 0 {
		return &NotificationError{ChannelID: en.channel.ID, Err: fmt.Errorf("no recipients configured")}
	}

	var auth smtp.Auth
	if cfg["username"] != "" {
		auth = smtp.PlainAuth("", cfg["username"], cfg["password"], host)
	}

	subject := en.renderSubject(alert)
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(formatAlertMessage(alert))

	if err := en.sendMail(host+":"+port, auth, from, recipients, msg.Bytes()); err != nil {
		return &NotificationError{ChannelID: en.channel.ID, Err: fmt.Errorf("smtp send failed: %v", err)}
	}

	en.logger.Debugf("Alert %s delivered to email channel %s (%d recipients)", alert.ID, en.channel.ID, len(recipients))
	return nil
}

func (en *EmailNotifier) renderSubject(alert model.Alert) string {
	raw := en.channel.Configuration["subject"]
	if raw == "" {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	}
	tmpl, err := template.New("subject").Parse(raw)
	if err != nil {
		en.logger.Warnf("Failed to parse subject template for channel %s: %v, using raw subject", en.channel.ID, err)
		return raw
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, alert); err != nil {
		return raw
	}
	return buf.String()
}

func splitRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if addr := strings.TrimSpace(p); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}
