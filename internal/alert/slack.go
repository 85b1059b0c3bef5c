package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// SlackNotifier sends alerts through a Slack incoming webhook.
type SlackNotifier struct {
	channel model.NotificationChannel
	client  *http.Client
	logger  *logrus.Logger
}

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func NewSlackNotifier(channel model.NotificationChannel, logger *logrus.Logger) *SlackNotifier {
	return &SlackNotifier{
		channel: channel,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (sn *SlackNotifier) Send(ctx context.Context, alert model.Alert) error {
	webhookURL := sn.channel.Configuration["webhook_url"]
	if webhookURL == "" {
		return &NotificationError{ChannelID: sn.channel.ID, Err: fmt.Errorf("missing slack webhook_url")}
	}

	message := slackMessage{
		Channel: sn.channel.Configuration["channel"],
		Text:    fmt.Sprintf("*[%s] %s*\n%s", alert.Severity, alert.Title, formatAlertMessage(alert)),
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return &NotificationError{ChannelID: sn.channel.ID, Err: fmt.Errorf("failed to marshal message: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return &NotificationError{ChannelID: sn.channel.ID, Err: fmt.Errorf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sn.client.Do(req)
	if err != nil {
		return &NotificationError{ChannelID: sn.channel.ID, Err: fmt.Errorf("failed to send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NotificationError{ChannelID: sn.channel.ID, Err: fmt.Errorf("slack API status %d: %s", resp.StatusCode, string(body))}
	}

	sn.logger.Debugf("Alert %s delivered to slack channel %s", alert.ID, sn.channel.ID)
	return nil
}
