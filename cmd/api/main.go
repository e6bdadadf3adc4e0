package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/itstheanurag/fnrunner/internal/config"
	"github.com/itstheanurag/fnrunner/internal/database"
	"github.com/itstheanurag/fnrunner/internal/server"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "fnrunner",
		Short:         "Run registered functions in resource-bounded sandboxes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults to $FNRUNNER_CONFIG)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and worker pool",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE:  runMigrate,
	})

	if err := root.Execute(); err != nil {
		logger := newLogger(config.Default().Log)
		logger.Fatal().Err(err).Msg("fnrunner failed")
	}
}

func newLogger(conf config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil || conf.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if conf.Format == "json" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, _ []string) error {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(conf.Log)

	srv, err := server.New(cmd.Context(), conf, &logger)
	if err != nil {
		return err
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(conf.Log)

	if conf.Storage != config.StoragePostgres {
		logger.Info().Str("storage", conf.Storage).Msg("nothing to migrate")
		return nil
	}

	db, err := database.New(cmd.Context(), conf, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate(cmd.Context())
}
