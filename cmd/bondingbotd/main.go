package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"BondingBot/internal/api"
	"BondingBot/internal/bot"
	"BondingBot/internal/chain"
	"BondingBot/internal/config"
	"BondingBot/internal/orchestrator"
	"BondingBot/internal/outcome"
	"BondingBot/internal/session"
	"BondingBot/internal/telegram"
	"BondingBot/internal/vault"
	"BondingBot/pkg/logger"
)

// main 是 BondingBot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("bondingbotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 仅用于本地开发，缺失时静默跳过。
	_ = godotenv.Load()

	configPath := os.Getenv("BONDINGBOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "bondingbot.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	publisher, err := newOutcomePublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = publisher.Close()
	}()

	gateway, err := chain.NewClient(ctx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		WSURL:               cfg.Chain.WSURL,
		ChainID:             cfg.Chain.ChainID,
		ReceiptPollInterval: time.Duration(cfg.Chain.ReceiptPollIntervalMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	keyVault, err := vault.New(cfg.Vault.EncryptionSecret)
	if err != nil {
		return err
	}

	eventTimeout := time.Duration(cfg.Chain.EventTimeoutSeconds) * time.Second
	submitter := orchestrator.New(gateway,
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithEventTimeout(eventTimeout),
	)

	tgClient := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.Token)

	handler := bot.New(bot.Config{
		FactoryAddress:    common.HexToAddress(cfg.Chain.FactoryAddress),
		TradingHubAddress: common.HexToAddress(cfg.Chain.TradingHubAddress),
		EventTimeout:      eventTimeout,
	}, keyVault, store, submitter, gateway, publisher, tgClient)

	if webhookURL := os.Getenv("WEBHOOK_URL"); webhookURL != "" {
		if err := tgClient.SetWebhook(ctx, webhookURL, cfg.Server.WebhookSecret); err != nil {
			return err
		}
		logger.L().Info("webhook 已注册", slog.String("url", webhookURL))
	}

	server := api.NewServer(cfg.Server.Address, cfg.Server.WebhookSecret, handler)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Driver {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "mysql":
		return session.NewMySQLStore(ctx, session.MySQLConfig{
			DSN:             cfg.Sessions.MySQL.DSN,
			MaxOpenConns:    cfg.Sessions.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Sessions.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Sessions.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		})
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			Address:  cfg.Sessions.Redis.Address,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
			TTL:      time.Duration(cfg.Sessions.Redis.TTLSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Sessions.Driver)
	}
}

func newOutcomePublisher(cfg *config.Config) (outcome.Publisher, error) {
	switch cfg.Outcomes.Driver {
	case "", "memory":
		return outcome.NewMemoryPublisher(), nil
	case "rabbitmq":
		return outcome.NewRabbitMQPublisher(outcome.RabbitMQConfig{
			URL:     cfg.Outcomes.RabbitMQ.URL,
			Queue:   cfg.Outcomes.RabbitMQ.Queue,
			Durable: cfg.Outcomes.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的流水发布驱动: %s", cfg.Outcomes.Driver)
	}
}
