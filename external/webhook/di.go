package webhook

import (
	"log/slog"

	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/foxseedlab/coachsession/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		sender := NewHTTPSender(cfg.SessionWebhookURL)
		if !sender.Enabled() {
			slog.Info("session webhook disabled", "reason", "SESSION_WEBHOOK_URL is empty")
		}
		return sender, nil
	})
}
