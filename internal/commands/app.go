package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/config"
	"github.com/curasupply/curaledger/internal/events"
	"github.com/curasupply/curaledger/internal/events/kafka"
	"github.com/curasupply/curaledger/internal/finance"
	"github.com/curasupply/curaledger/internal/gitops"
	"github.com/curasupply/curaledger/internal/logging"
	"github.com/curasupply/curaledger/internal/metrics"
	"github.com/curasupply/curaledger/internal/store"
	"github.com/curasupply/curaledger/internal/store/csvstore"
	"github.com/curasupply/curaledger/internal/store/memory"
	"github.com/curasupply/curaledger/internal/store/postgres"
	"github.com/curasupply/curaledger/internal/store/resilient"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	dir   string
	actor string
}

// path resolves p against the project directory.
func (o *options) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.dir, p)
}

// loadConfig reads .env, then curaledger.yaml, then environment overrides.
func (o *options) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(o.path(".env")); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(o.path(config.FileName))
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// app is the service stack a command runs against.
type app struct {
	dir     string
	cfg     *config.Config
	svc     *finance.Service
	logger  *logging.Logger
	closers []func() error
}

// openApp wires config, logging, the store behind the resilient wrapper,
// event publishing and the audit log into a finance.Service.
func (o *options) openApp(ctx context.Context, collector metrics.Collector) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logging.SetGlobal(logger)

	a := &app{dir: o.dir, cfg: cfg, logger: logger}

	st, err := o.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		p := kafka.NewPublisher(cfg.Events.Brokers, cfg.Events.Timeout)
		a.closers = append(a.closers, p.Close)
		publisher = p
	}

	guarded := resilient.New(cfg.Store.Driver, st, cfg.Store.Resilience, collector)
	a.svc = finance.NewService(guarded,
		finance.WithPublisher(publisher),
		finance.WithAuditLog(auditlog.Open(o.dir)),
		finance.WithMetrics(collector),
		finance.WithLogger(logger),
	)
	return a, nil
}

func (o *options) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverCSV:
		st, err := csvstore.Open(o.path(cfg.Store.DataDir))
		if err != nil {
			return nil, fmt.Errorf("opening csv store: %w", err)
		}
		return st, nil
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// commit records the project's changes in git when the project is a
// repository and auto-commit is on. The ledger write has already happened,
// so a failed commit is logged, not returned.
func (a *app) commit(message string) {
	if !a.cfg.Git.AutoCommit || !gitops.IsRepo(a.dir) {
		return
	}
	author := gitops.Author{Name: a.cfg.Git.AuthorName, Email: a.cfg.Git.AuthorEmail}
	hash, err := gitops.CommitAll(a.dir, message, author)
	if err != nil {
		a.logger.Warn("committing ledger change", zap.String("message", message), zap.Error(err))
		return
	}
	if hash != "" {
		a.logger.Debug("committed ledger change", zap.String("commit", hash), zap.String("message", message))
	}
}

// Close releases the store and publisher and flushes the logger.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	// Sync on a terminal stderr fails with EINVAL; nothing is lost.
	_ = a.logger.Sync()
	return err
}
