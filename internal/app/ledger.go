package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/hall"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Ledger holds the wired ledger services for one store driver.
type Ledger struct {
	Accounting  *accounting.Service
	AR          *ar.Service
	Hall        *hall.Service
	Projector   *balances.Projector
	Journals    jobs.JournalChecker
	Receivables jobs.ReceivableChecker

	closers []func()
}

// Close releases pools and clients opened by BuildLedger.
func (l *Ledger) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
}

// BuildLedger connects the configured store, resolves the default accounts
// and wires the services. metrics may be nil.
func BuildLedger(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Ledger, error) {
	out := &Ledger{}
	var (
		accountingRepo accounting.RepositoryPort
		arRepo         ar.RepositoryPort
		hallRepo       hall.RepositoryPort
		reader         balances.Reader
		lookup         mappings.AccountLookup
		mappingRepo    mappings.Repository
		auditor        accounting.AuditPort
		seed           func(*accounting.Service) error
	)

	switch cfg.StoreDriver {
	case StoreDriverMemory:
		store := memory.New()
		accountingRepo, arRepo, hallRepo = store.Accounting(), store.AR(), store.Hall()
		reader, lookup, mappingRepo = store, store, store
		auditor = shared.NewLogAuditor(logger)
		out.Journals, out.Receivables = store, store
		seed = func(svc *accounting.Service) error {
			return memory.Seed(ctx, svc, memory.DefaultChart)
		}
	default:
		pool, err := db.New(ctx, cfg.PoolConfig())
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, pool.Close)
		if cfg.PGMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				out.Close()
				return nil, err
			}
			logger.Info("schema migrated")
		}
		repo := accounting.NewRepository(pool)
		receivables := ar.NewRepository(pool)
		accountingRepo, arRepo, hallRepo = repo, receivables, hall.NewRepository(pool)
		reader, lookup, mappingRepo = repo, repo, mappings.NewRepository(pool)
		auditor = shared.NewAuditLogger(pool)
		out.Journals, out.Receivables = repo, receivables
	}

	out.Accounting = accounting.NewService(accountingRepo, auditor, logger)
	if seed != nil {
		if err := seed(out.Accounting); err != nil {
			out.Close()
			return nil, fmt.Errorf("seed chart: %w", err)
		}
	}
	defaults, err := mappings.NewResolver(lookup, mappingRepo).Resolve(ctx, cfg.AccountCodes())
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("resolve default accounts: %w", err)
	}
	out.Accounting.WithDefaults(defaults)

	projectionCache := connectCache(ctx, cfg, logger, out)
	if projectionCache != nil {
		out.Accounting.WithInvalidator(projectionCache)
	}
	out.Projector = balances.NewProjector(reader, projectionCache, logger)
	if metrics != nil {
		out.Projector.WithCacheObserver(metrics.ObserveProjectionCache)
	}
	out.AR = ar.NewService(arRepo, out.Accounting, logger)
	out.Hall = hall.NewService(hallRepo, out.Accounting, logger)
	out.AR.WithBookingPayments(out.Hall)
	return out, nil
}

// connectCache returns nil when Redis is unreachable; projections are then
// built on every request.
func connectCache(ctx context.Context, cfg *Config, logger *slog.Logger, l *Ledger) *balances.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Warn("projection cache disabled", slog.Any("error", err))
		return nil
	}
	l.closers = append(l.closers, func() { closeRedis(client, logger) })
	return balances.NewCache(client, cfg.StatementCacheTTL)
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
