package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventhub/cmd/buildCFG"
	"eventhub/internal/api/api"
	rabbitReader "eventhub/internal/consumerWorker"
	"eventhub/internal/credential"
	"eventhub/internal/mailer"
	"eventhub/internal/notify"
	"eventhub/internal/pass"
	"eventhub/internal/rabbit"
	"eventhub/internal/repo"
	"eventhub/internal/scanguard"
	"eventhub/internal/service"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration file")
	migrateDown := pflag.Bool("migrate-down", false, "roll back all migrations and exit")
	pflag.Parse()

	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load(*configPath, "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}

	appCfg, err := buildCFG.BuildAppConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid application config")
	}

	repository, err := openRepository(cfg, appCfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	if *migrateDown {
		if err := repository.MigrateDown(appCfg.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
		return
	}
	if err := repository.MigrateUp(appCfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	securityCfg, err := buildCFG.BuildSecurityConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid security config")
	}
	signer, err := pass.NewSigner(securityCfg.PassSeed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pass signer")
	}
	encoder, err := credential.NewEncoder(securityCfg.CredentialSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create credential encoder")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	props := service.Property{
		Repo:     repository,
		Notifier: notify.Nop{},
		Signer:   signer,
		Hasher:   credential.NewHasher(encoder, securityCfg.BcryptCost),
		Logger:   &log,
		Config:   appCfg.Service,
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	var reader *rabbitReader.Reader
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue, rabbitCfg.BindingKeys...)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		props.Notifier = notify.NewPublisher(rmq)

		smtpCfg := buildCFG.BuildSMTPConfig(cfg, &log)
		mail := mailer.New(mailer.Config{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			From:     smtpCfg.From,
		}, &log)
		reader = rabbitReader.NewReader(rmq, mail, &log)
		reader.Start(workerCtx)
	}

	redisCfg, err := buildCFG.BuildRedisConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load Redis config")
	}
	if redisCfg.Enabled {
		rdb, err := scanguard.NewClient(workerCtx, redisCfg.Url)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		props.Guard = scanguard.New(rdb, redisCfg.ScanTTL)
	}

	svc := service.New(props)

	if created, err := svc.Accounts.BootstrapAdmin(workerCtx, securityCfg.AdminEmail, securityCfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin account")
	} else if created {
		log.Info().Str("email", securityCfg.AdminEmail).Msg("admin account created")
	}

	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	app := api.NewRouters(&api.Routers{Service: svc, Log: &log})
	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	log.Info().Msg("Shutdown complete")
}

func openRepository(cfg *config.Config, appCfg buildCFG.AppConfig, log *zerolog.Logger) (repo.Repository, error) {
	if appCfg.StorageDriver == "memory" {
		log.Warn().Msg("using in-memory storage, data is lost on exit")
		return repo.NewMemory(repo.SeedCategories(), log), nil
	}

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build DB config: %w", err)
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("DB ping: %w", err)
	}
	log.Info().Msg("Database connected successfully")

	return repo.NewRepository(db, log)
}
