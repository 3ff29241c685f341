package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config 描述了 BondingBot 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Chain    ChainConfig    `yaml:"chain"`
	Vault    VaultConfig    `yaml:"vault"`
	Sessions SessionsConfig `yaml:"sessions"`
	Outcomes OutcomesConfig `yaml:"outcomes"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig 控制 Webhook 服务的监听地址等参数。
type ServerConfig struct {
	Address       string `yaml:"address"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// TelegramConfig 描述 Bot API 的访问方式。
type TelegramConfig struct {
	Token   string `yaml:"token"`
	APIBase string `yaml:"api_base"`
}

// ChainConfig 包含访问区块链节点与合约所需的地址。
type ChainConfig struct {
	RPCURL                string `yaml:"rpc_url"`
	WSURL                 string `yaml:"ws_url"`
	ChainID               int64  `yaml:"chain_id"`
	FactoryAddress        string `yaml:"factory_address"`
	TradingHubAddress     string `yaml:"trading_hub_address"`
	EventTimeoutSeconds   int    `yaml:"event_timeout_seconds"`
	ReceiptPollIntervalMS int    `yaml:"receipt_poll_interval_ms"`
}

// VaultConfig 配置钱包加密所使用的对称密钥。
// 该密钥必须独立配置，绝不能复用 Bot Token 或任何用户可控的输入。
type VaultConfig struct {
	EncryptionSecret string `yaml:"encryption_secret"`
}

// SessionsConfig 描述会话（钱包）存储后端。
type SessionsConfig struct {
	Driver string      `yaml:"driver"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

// MySQLConfig 提供 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig 提供 Redis 连接参数。
type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// OutcomesConfig 描述交易结果流水的发布方式。
type OutcomesConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
	Durable bool   `yaml:"durable"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level      string      `yaml:"level"`
	Format     string      `yaml:"format"`
	OutputPath string      `yaml:"output_path"`
	Audit      AuditConfig `yaml:"audit"`
}

// AuditConfig 控制审计日志输出。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load 负责解析指定路径的 YAML 配置文件，并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides 允许通过环境变量注入机密，避免将其写入配置文件。
func (c *Config) applyEnvOverrides() {
	overrideString(&c.Telegram.Token, "BOT_TOKEN")
	overrideString(&c.Server.WebhookSecret, "WEBHOOK_SECRET")
	overrideString(&c.Vault.EncryptionSecret, "VAULT_ENCRYPTION_SECRET")
	overrideString(&c.Chain.RPCURL, "CHAIN_RPC_URL")
	overrideString(&c.Chain.WSURL, "CHAIN_WS_URL")
	overrideString(&c.Chain.FactoryAddress, "FACTORY_CONTRACT_ADDRESS")
	overrideString(&c.Chain.TradingHubAddress, "TRADING_HUB_CONTRACT_ADDRESS")
	overrideString(&c.Sessions.MySQL.DSN, "SESSIONS_MYSQL_DSN")
	overrideString(&c.Sessions.Redis.Address, "SESSIONS_REDIS_ADDRESS")
	overrideString(&c.Sessions.Redis.Password, "SESSIONS_REDIS_PASSWORD")
	overrideString(&c.Outcomes.RabbitMQ.URL, "OUTCOMES_RABBITMQ_URL")
	if raw := os.Getenv("CHAIN_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.Chain.ChainID = parsed
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = "https://api.telegram.org"
	}
	if c.Sessions.Driver == "" {
		c.Sessions.Driver = "memory"
	}
	if c.Outcomes.Driver == "" {
		c.Outcomes.Driver = "memory"
	}
	if c.Chain.EventTimeoutSeconds <= 0 {
		c.Chain.EventTimeoutSeconds = 120
	}
	if c.Chain.ReceiptPollIntervalMS <= 0 {
		c.Chain.ReceiptPollIntervalMS = 2000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Vault.EncryptionSecret == "" {
		return errors.New("缺少钱包加密密钥（vault.encryption_secret 或 VAULT_ENCRYPTION_SECRET）")
	}
	if c.Vault.EncryptionSecret == c.Telegram.Token {
		return errors.New("钱包加密密钥不允许复用 Bot Token")
	}
	if c.Chain.RPCURL == "" {
		return errors.New("缺少链 RPC 地址")
	}
	return nil
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}
