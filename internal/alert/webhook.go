package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier POSTs the alert as JSON to a configured URL.
type WebhookNotifier struct {
	channel model.NotificationChannel
	client  *http.Client
	logger  *logrus.Logger
}

func NewWebhookNotifier(channel model.NotificationChannel, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		channel: channel,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (wn *WebhookNotifier) Send(ctx context.Context, alert model.Alert) error {
	url := wn.channel.Configuration["url"]
	if url == "" {
		return &NotificationError{ChannelID: wn.channel.ID, Err: fmt.Errorf("missing webhook url")}
	}

	method := wn.channel.Configuration["method"]
	if method == "" {
		method = http.MethodPost
	}

	payload := map[string]interface{}{
		"alert":   alert,
		"message": formatAlertMessage(alert),
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &NotificationError{ChannelID: wn.channel.ID, Err: fmt.Errorf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return &NotificationError{ChannelID: wn.channel.ID, Err: fmt.Errorf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	// Extra headers come as "Name1:Value1,Name2:Value2".
	if headers := wn.channel.Configuration["headers"]; headers != "" {
		for _, pair := range strings.Split(headers, ",") {
			if name, value, ok := strings.Cut(pair, ":"); ok {
				req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}
		}
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return &NotificationError{ChannelID: wn.channel.ID, Err: fmt.Errorf("failed to send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NotificationError{ChannelID: wn.channel.ID, Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	}

	wn.logger.Debugf("Alert %s delivered to webhook channel %s", alert.ID, wn.channel.ID)
	return nil
}
