package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"github.com/ksdme/mailhook/internal/api"
	"github.com/ksdme/mailhook/internal/backend"
	"github.com/ksdme/mailhook/internal/blocklist"
	"github.com/ksdme/mailhook/internal/config"
	"github.com/ksdme/mailhook/internal/notify"
	"github.com/ksdme/mailhook/internal/pipeline"
	"github.com/ksdme/mailhook/internal/query"
	"github.com/ksdme/mailhook/internal/store"
)

func main() {
	if config.Core.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.Open(config.Core.DBDriver, config.Core.DBURI)
	if err != nil {
		log.Panicf("opening db failed: %v", err)
	}
	defer db.Close()

	emails := store.New(db)
	if config.Core.DBMigrate {
		if err := emails.Migrate(context.Background()); err != nil {
			log.Panicf("could not migrate db: %v", err)
		}
	}

	matcher, err := loadBlocklist()
	if err != nil {
		log.Panicf("could not load blocklist: %v", err)
	}

	location, err := time.LoadLocation(config.Notify.DisplayTimezone)
	if err != nil {
		log.Panicf("could not load display timezone: %v", err)
	}

	notifier, errorNotifier, err := selectNotifiers()
	if err != nil {
		log.Panicf("could not set up notifications: %v", err)
	}

	p := pipeline.New(pipeline.Options{
		Blocklist:       matcher,
		Store:           emails,
		Formatter:       notify.NewFormatter(location, config.Notify.PreviewLimit, config.Notify.MaxLinks),
		Notifier:        notifier,
		ErrorNotifier:   errorNotifier,
		FallbackAddress: config.Mail.FallbackAddress,
		RejectReason:    config.Mail.RejectReason,
	})

	s := smtp.NewServer(backend.NewBackend(p, backend.NewRelay(config.Mail.RelayAddr)))
	s.Addr = config.Mail.SMTPBindAddr
	s.Domain = config.Mail.MXHost
	s.MaxMessageBytes = config.Mail.MaxMessageBytes
	s.ReadTimeout = time.Minute
	s.WriteTimeout = time.Minute

	credentials := api.Credentials{User: config.Core.DashboardUser, Password: config.Core.DashboardPass}
	if err := credentials.Validate(config.Core.DashboardInsecure); err != nil {
		log.Panicf("invalid dashboard credentials: %v", err)
	}

	h := &http.Server{
		Addr:              config.Core.HTTPBindAddr,
		Handler:           api.NewRouter(query.NewService(emails), credentials),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting smtp server", "addr", s.Addr, "domain", s.Domain)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			log.Panicf("smtp server failed: %v", err)
		}
	}()

	go func() {
		slog.Info("starting http server", "addr", h.Addr)
		if err := h.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Panicf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		slog.Error("could not shut down smtp server", "err", err)
	}
	if err := h.Shutdown(ctx); err != nil {
		slog.Error("could not shut down http server", "err", err)
	}
	slog.Info("stopped")
}

// Reads the blocklist file, if any, and merges the environment entries
// on top of it.
func loadBlocklist() (*blocklist.Matcher, error) {
	cfg := blocklist.Config{}
	if config.Blocklist.Path != "" {
		var err error
		if cfg, err = blocklist.LoadFile(config.Blocklist.Path); err != nil {
			return nil, err
		}
	}

	cfg = cfg.Merge(blocklist.Config{
		Addresses: config.Blocklist.Addresses,
		Patterns:  config.Blocklist.Patterns,
	})
	slog.Info("loaded blocklist", "addresses", len(cfg.Addresses), "patterns", len(cfg.Patterns))

	return blocklist.New(cfg)
}

// Returns the notifier for stored emails and the one for failures. The
// failure notifier uses the regular channel unless a dedicated one is
// configured. Both are nil when notifications are disabled.
func selectNotifiers() (notify.Notifier, notify.Notifier, error) {
	settings := config.Notify

	switch settings.Provider {
	case "discord":
		if settings.DiscordWebhookURL == "" {
			return nil, nil, errors.New("DISCORD_WEBHOOK_URL is required for the discord provider")
		}

		client := &http.Client{Timeout: settings.Timeout}
		regular := notify.NewDiscord(settings.DiscordWebhookURL, settings.DiscordStyle, client)
		if settings.DiscordErrorWebhookURL == "" {
			return regular, regular, nil
		}
		return regular, notify.NewDiscord(settings.DiscordErrorWebhookURL, settings.DiscordStyle, client), nil

	case "slack":
		if settings.SlackToken == "" || settings.SlackChannel == "" {
			return nil, nil, errors.New("SLACK_TOKEN and SLACK_CHANNEL are required for the slack provider")
		}

		regular := notify.NewSlack(settings.SlackToken, settings.SlackChannel, settings.Timeout)
		if settings.SlackErrorChannel == "" {
			return regular, regular, nil
		}
		return regular, notify.NewSlack(settings.SlackToken, settings.SlackErrorChannel, settings.Timeout), nil

	case "none", "":
		slog.Warn("notifications are disabled")
		return nil, nil, nil

	default:
		return nil, nil, errors.New("unknown NOTIFY_PROVIDER: " + settings.Provider)
	}
}
