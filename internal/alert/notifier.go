// Package alert delivers alerts to notification channels without blocking
// rule evaluation.
package alert

import (
	"context"
	"fmt"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// Notifier delivers one alert to one channel.
type Notifier interface {
	Send(ctx context.Context, alert model.Alert) error
}

// NotificationError marks a channel-level delivery failure. It is logged,
// never propagated to the evaluation path.
type NotificationError struct {
	ChannelID string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.ChannelID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotifier builds the notifier for a channel's type. Channel types are a
// closed set; adding one is a compile-time change here.
func NewNotifier(channel model.NotificationChannel, logger *logrus.Logger) (Notifier, error) {
	switch channel.Type {
	case model.ChannelEmail:
		return NewEmailNotifier(channel, logger), nil
	case model.ChannelWebhook:
		return NewWebhookNotifier(channel, logger), nil
	case model.ChannelSlack:
		return NewSlackNotifier(channel, logger), nil
	default:
		return nil, fmt.Errorf("unknown channel type %q", channel.Type)
	}
}

// formatAlertMessage is the default plain-text rendering shared by channels.
func formatAlertMessage(alert model.Alert) string {
	message := fmt.Sprintf("ALERT FIRING: %s\n\n"+
		"title: %s\n"+
		"severity: %s\n"+
		"group: %s\n"+
		"first_triggered: %s\n"+
		"last_triggered: %s\n"+
		"event_count: %d\n"+
		"description: %s",
		alert.Type,
		alert.Title,
		alert.Severity,
		alert.GroupKey,
		alert.FirstTriggeredAt.Format("2006-01-02 15:04:05"),
		alert.LastTriggeredAt.Format("2006-01-02 15:04:05"),
		alert.TriggeringEventCount,
		alert.Description)
	return message
}
