package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/config"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/database/postgres"
	"github.com/koustreak/xdb/internal/database/sqldb"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/koustreak/xdb/internal/query"
	"github.com/koustreak/xdb/internal/querylog"
)

// session is everything a subcommand needs to talk to the database.
type session struct {
	cfg  *config.Config
	lg   *logger.Logger
	drv  database.Driver
	log  *querylog.Log
	exec *query.Executor
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg := logger.New(cfg.Log)
	logger.SetGlobal(lg)

	drv, err := openDriver(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	log := querylog.New(querylog.WithLimit(cfg.QueryLog.Limit))
	log.SetActive(cfg.QueryLog.Active)

	dups := query.KeepLast
	if cfg.Fetch.RejectDuplicateKeys {
		dups = query.RejectDuplicates
	}

	exec := query.New(drv,
		query.WithQueryLog(log),
		query.WithLogger(lg),
		query.WithDuplicateKeys(dups),
	)
	return &session{cfg: cfg, lg: lg, drv: drv, log: log, exec: exec}, nil
}

func (s *session) Close() error {
	return s.drv.Close()
}

// callContext applies the configured per-call deadline.
func (s *session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Database.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Database.QueryTimeout)
}

func openDriver(ctx context.Context, cfg *database.Config) (database.Driver, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		drv, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return drv, nil
	case database.DriverMySQL, database.DriverPQ:
		drv, err := sqldb.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return drv, nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Driver)
}

// parseArgs turns repeated key=value flags into bind values. Values stay
// text; the binder infers their wire type.
func parseArgs(args []string) (bind.Values, error) {
	values := bind.Values{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "argument %q is not key=value", a)
		}
		if v == "NULL" {
			values[k] = nil
			continue
		}
		values[k] = v
	}
	return values, nil
}

func usageError(format string, args ...any) error {
	return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf(format, args...))
}
