package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
	"github.com/rovshanmuradov/fairlaunch/internal/store"
	"github.com/rovshanmuradov/fairlaunch/internal/store/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "fairlaunch",
		Short:        "Fair-launch bonding pools with AMM migration",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "duplicate logs as JSON into this file")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")

	root.AddCommand(newSimulateCmd(), newPoolCmd(), newMigrateCmd(), newInitDBCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime - общее окружение подкоманд.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	close  func()
}

func setup(cmd *cobra.Command) (*runtime, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.LogFile = cfg.LogFile
	log, closeLog, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: log, close: closeLog}, nil
}

// openStore returns the Postgres store when a DSN is configured and the
// in-memory store otherwise.
func (r *runtime) openStore(ctx context.Context) (store.Store, func(), error) {
	if r.cfg.PGDSN == "" {
		r.logger.Info("Using in-memory store")
		return store.NewMemory(nil), func() {}, nil
	}
	pg, err := r.postgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func (r *runtime) postgres(ctx context.Context) (*postgres.Store, error) {
	if r.cfg.PGDSN == "" {
		return nil, fmt.Errorf("pg_dsn is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := postgres.NewStore(connectCtx, r.cfg.PGDSN, r.logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(connectCtx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

// nonce returns the configured AMM nonce or derives it from the AMM program.
func (r *runtime) nonce() (uint8, error) {
	if r.cfg.MigrationNonce != 0 {
		return r.cfg.MigrationNonce, nil
	}
	return amm.AuthorityNonce(r.cfg.AMM)
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			pg, err := rt.postgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()
			rt.logger.Info("Schema ready")
			return nil
		},
	}
}
