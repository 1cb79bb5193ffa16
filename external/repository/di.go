package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/foxseedlab/coachsession/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.SessionRepository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		switch cfg.SessionStore {
		case config.SessionStoreMemory:
			return NewMemoryRepository(), nil
		case config.SessionStorePostgres:
			repo, err := newPostgresFromConfig(cfg)
			if err != nil {
				return nil, err
			}
			return repo, nil
		default:
			return nil, fmt.Errorf("unsupported session store %q", cfg.SessionStore)
		}
	})
}

func newPostgresFromConfig(cfg *config.Config) (*PostgresRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
	defer cancel()

	p, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresRepository(p), nil
}
