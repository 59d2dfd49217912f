package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// General server level configuration.
type coreSettings struct {
	Debug bool `env:"DEBUG"`

	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBURI     string `env:"DB_URI" envDefault:"file:db.sqlite3"`
	DBMigrate bool   `env:"DB_MIGRATE"`

	HTTPBindAddr      string `env:"HTTP_BIND_ADDR" envDefault:"127.0.0.1:8080"`
	DashboardUser     string `env:"DASHBOARD_USER"`
	DashboardPass     string `env:"DASHBOARD_PASS"`
	DashboardInsecure bool   `env:"DASHBOARD_INSECURE"`
}

// Settings related to receiving mail.
type mailSettings struct {
	MXHost          string `env:"MX_HOST" envDefault:"localhost"`
	SMTPBindAddr    string `env:"SMTP_BIND_ADDR" envDefault:"127.0.0.1:1025"`
	MaxMessageBytes int64  `env:"SMTP_MAX_MESSAGE_BYTES" envDefault:"26214400"`

	// Relay used to forward messages that could not be processed.
	RelayAddr       string `env:"SMTP_RELAY_ADDR"`
	FallbackAddress string `env:"FALLBACK_FORWARD_ADDRESS"`

	RejectReason string `env:"REJECT_REASON" envDefault:"Email blocked by system policy."`
}

// Settings related to the sender blocklist. Entries from the file and
// the environment are merged.
type blocklistSettings struct {
	Path      string   `env:"BLOCKLIST_PATH"`
	Addresses []string `env:"BLOCKED_ADDRESSES" envSeparator:","`
	Patterns  []string `env:"BLOCKED_PATTERNS" envSeparator:","`
}

// Settings related to outbound notifications.
type notifySettings struct {
	Provider string `env:"NOTIFY_PROVIDER" envDefault:"discord"`

	DiscordWebhookURL      string `env:"DISCORD_WEBHOOK_URL"`
	DiscordErrorWebhookURL string `env:"DISCORD_ERROR_WEBHOOK_URL"`
	DiscordStyle           string `env:"DISCORD_STYLE" envDefault:"file"`

	SlackToken        string `env:"SLACK_TOKEN"`
	SlackChannel      string `env:"SLACK_CHANNEL"`
	SlackErrorChannel string `env:"SLACK_ERROR_CHANNEL"`

	DisplayTimezone string        `env:"DISPLAY_TIMEZONE" envDefault:"Asia/Makassar"`
	PreviewLimit    int           `env:"NOTIFY_PREVIEW_LIMIT" envDefault:"1000"`
	MaxLinks        int           `env:"NOTIFY_MAX_LINKS" envDefault:"5"`
	Timeout         time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

func init() {
	if err := env.Parse(&Core); err != nil {
		panic(fmt.Sprintf("could not parse core configuration: %v", err))
	}

	if err := env.Parse(&Mail); err != nil {
		panic(fmt.Sprintf("could not parse mail configuration: %v", err))
	}

	if err := env.Parse(&Blocklist); err != nil {
		panic(fmt.Sprintf("could not parse blocklist configuration: %v", err))
	}

	if err := env.Parse(&Notify); err != nil {
		panic(fmt.Sprintf("could not parse notify configuration: %v", err))
	}
}

var Core coreSettings

// Only the commands read these. Library packages take their
// dependencies as arguments instead.
var Mail mailSettings
var Blocklist blocklistSettings
var Notify notifySettings
