package buildCFG

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventhub/internal/pass"
	"eventhub/internal/service"
)

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type RabbitConfig struct {
	Enabled     bool
	Url         string
	Exchange    string
	Queue       string
	BindingKeys []string
}

type RedisConfig struct {
	Enabled bool
	Url     string
	ScanTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SecurityConfig struct {
	CredentialSecret string
	PassSeed         []byte
	AdminEmail       string
	AdminPassword    string
	BcryptCost       int
}

type AppConfig struct {
	StorageDriver  string
	MigrationsPath string
	Service        service.Config
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port is not set, using 8080")
		port = "8080"
	}
	timeout := cfg.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ServerConfig{Port: port, ShutdownTimeout: timeout}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("db.master_dsn")
	if master == "" {
		return "", nil, nil, errors.New("db.master_dsn is required")
	}

	var slaves []string
	for _, dsn := range strings.Split(cfg.GetString("db.slave_dsns"), ",") {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			slaves = append(slaves, dsn)
		}
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("db.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}

	log.Debug().
		Int("slaves", len(slaves)).
		Int("max_open_conns", opts.MaxOpenConns).
		Msg("database config built")
	return master, slaves, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbit.enabled"),
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("rabbit disabled, notifications are dropped")
		return rc, nil
	}
	if rc.Url == "" {
		return rc, errors.New("rabbit.url is required when rabbit is enabled")
	}
	if rc.Exchange == "" {
		rc.Exchange = "eventhub.events"
	}
	if rc.Queue == "" {
		rc.Queue = "eventhub.mailer"
	}
	for _, key := range strings.Split(cfg.GetString("rabbit.binding_keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			rc.BindingKeys = append(rc.BindingKeys, key)
		}
	}
	return rc, nil
}

func BuildRedisConfig(cfg *config.Config, log *zerolog.Logger) (RedisConfig, error) {
	rc := RedisConfig{
		Enabled: cfg.GetBool("redis.enabled"),
		Url:     cfg.GetString("redis.url"),
		ScanTTL: cfg.GetDuration("redis.scan_ttl"),
	}
	if !rc.Enabled {
		log.Info().Msg("redis disabled, scan guard is off")
		return rc, nil
	}
	if rc.Url == "" {
		return rc, errors.New("redis.url is required when redis is enabled")
	}
	return rc, nil
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) SMTPConfig {
	sc := SMTPConfig{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetString("smtp.port"),
		Username: cfg.GetString("smtp.username"),
		Password: cfg.GetString("smtp.password"),
		From:     cfg.GetString("smtp.from"),
	}
	if sc.Host == "" {
		log.Warn().Msg("smtp.host is not set, e-mails are only logged")
	}
	if sc.Port == "" {
		sc.Port = "587"
	}
	if sc.From == "" {
		sc.From = "no-reply@eventhub.local"
	}
	return sc
}

func BuildSecurityConfig(cfg *config.Config, log *zerolog.Logger) (SecurityConfig, error) {
	sc := SecurityConfig{
		CredentialSecret: cfg.GetString("security.credential_secret"),
		AdminEmail:       cfg.GetString("security.admin_email"),
		AdminPassword:    cfg.GetString("security.admin_password"),
		BcryptCost:       cfg.GetInt("security.bcrypt_cost"),
	}
	if sc.CredentialSecret == "" {
		return sc, errors.New("security.credential_secret is required")
	}

	seedHex := cfg.GetString("security.pass_seed")
	if seedHex == "" {
		seed, err := pass.GenerateSeed()
		if err != nil {
			return sc, fmt.Errorf("generate pass seed: %w", err)
		}
		log.Warn().Msg("security.pass_seed is not set, issued passes will not verify after a restart")
		sc.PassSeed = seed
		return sc, nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return sc, fmt.Errorf("security.pass_seed: %w", err)
	}
	sc.PassSeed = seed
	return sc, nil
}

func BuildAppConfig(cfg *config.Config, log *zerolog.Logger) (AppConfig, error) {
	policy, err := service.ParseOrganizerPolicy(cfg.GetString("app.organizer_policy"))
	if err != nil {
		return AppConfig{}, err
	}

	ac := AppConfig{
		StorageDriver:  strings.ToLower(cfg.GetString("storage.driver")),
		MigrationsPath: cfg.GetString("storage.migrations_path"),
		Service: service.Config{
			OrganizerPolicy:       policy,
			DefaultCapacity:       cfg.GetInt("app.default_capacity"),
			DefaultCurrency:       strings.ToUpper(cfg.GetString("app.default_currency")),
			PurchaseMaxAttempts:   cfg.GetInt("app.purchase_max_attempts"),
			TransitionMaxAttempts: cfg.GetInt("app.transition_max_attempts"),
			OpTimeout:             cfg.GetDuration("app.op_timeout"),
			NotifyTimeout:         cfg.GetDuration("app.notify_timeout"),
		},
	}
	switch ac.StorageDriver {
	case "":
		ac.StorageDriver = "postgres"
	case "postgres", "memory":
	default:
		return ac, fmt.Errorf("unknown storage.driver %q", ac.StorageDriver)
	}
	if ac.MigrationsPath == "" {
		ac.MigrationsPath = "migrations/postgres"
	}

	log.Info().
		Str("storage", ac.StorageDriver).
		Str("organizer_policy", string(policy)).
		Msg("application config built")
	return ac, nil
}
