package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/koustreak/tablegate/internal/config"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/database/mysql"
	"github.com/koustreak/tablegate/internal/database/postgres"
	"github.com/koustreak/tablegate/internal/export"
	"github.com/koustreak/tablegate/internal/filestore"
	"github.com/koustreak/tablegate/internal/filestore/minio"
	"github.com/koustreak/tablegate/internal/logger"
	"github.com/koustreak/tablegate/internal/metrics"
	"github.com/koustreak/tablegate/internal/server"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tablegate",
		Short:         "Generic REST API over the tables of a relational database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE:  runConfig,
	})
	return root
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()
	path, err := fs.GetString(config.FlagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, fs)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := cfg.Redacted().YAML()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.LoggerConfig())
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.With().
		Str("driver", string(cfg.Database.Driver)).
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.EffectivePort()).
		Str("database", cfg.Database.Name).
		Logger().
		Info("database connected")

	m := metrics.New()
	opts := server.Options{DB: db, Metrics: m, Logger: log}

	if cfg.Export.Enabled() {
		storeCfg := cfg.Export.StoreConfig()
		store, err := openStore(ctx, storeCfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Exporter = export.New(db, store, storeCfg.Bucket, storeCfg.URLExpiry)
		log.Infof("exports enabled, bucket %s", storeCfg.Bucket)
	}

	srv := server.New(opts)
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	log.Infof("API available at http://localhost%s/api/tables", addr)
	return srv.Run(ctx, addr, cfg.Server.ShutdownTimeout)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (database.DB, error) {
	pool := cfg.PoolConfig()
	if cfg.Driver == database.DriverPostgres {
		d, err := postgres.New(ctx, pool)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := mysql.New(ctx, pool)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	store, err := minio.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
