package model

type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
)

// RequiredConfigKeys lists the configuration keys each channel type must carry.
var RequiredConfigKeys = map[ChannelType][]string{
	ChannelEmail:   {"smtp_host", "smtp_port", "from", "recipients"},
	ChannelWebhook: {"url"},
	ChannelSlack:   {"webhook_url"},
}

// NotificationChannel is a delivery target with a minimum severity filter.
type NotificationChannel struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Type          ChannelType       `yaml:"type" json:"type"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Configuration map[string]string `yaml:"configuration" json:"configuration"`
	MinSeverity   Severity          `yaml:"min_severity" json:"min_severity"`
}

func (t ChannelType) Valid() bool {
	_, ok := RequiredConfigKeys[t]
	return ok
}
