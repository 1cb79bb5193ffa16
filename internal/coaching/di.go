package coaching

import (
	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/foxseedlab/coachsession/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.SessionRepository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewManager(cfg, repo, wh), nil
	})
}
