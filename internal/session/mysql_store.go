package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"BondingBot/deploy/migrations"
	xerrors "BondingBot/internal/errors"
)

// MySQLConfig 描述 MySQL 存储的连接参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 将钱包持久化到 MySQL，进程重启后会话不丢失。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建 MySQLStore 并完成建表。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigration(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{db: db}, nil
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}
	return db, nil
}

// runMigration 按文件名顺序执行内嵌的 SQL 迁移。
func runMigration(ctx context.Context, db *sql.DB) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("读取迁移目录失败: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("读取迁移 %s 失败: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", name, err)
		}
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, userID int64) (*Wallet, error) {
	const query = `SELECT address, encrypted_private_key, encrypted_mnemonic
FROM bot_wallets WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var wallet Wallet
	var mnemonic sql.NullString
	if err := row.Scan(&wallet.Address, &wallet.EncryptedPrivateKey, &mnemonic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodePersistenceFailure, err, "查询钱包失败")
	}
	if mnemonic.Valid {
		wallet.EncryptedMnemonic = mnemonic.String
	}
	return &wallet, nil
}

// Put 实现 Store 接口。重复写入同一用户即为整体替换。
func (s *MySQLStore) Put(ctx context.Context, userID int64, wallet *Wallet) error {
	if wallet == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet 不能为空")
	}
	const stmt = `INSERT INTO bot_wallets
        (user_id, address, encrypted_private_key, encrypted_mnemonic, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
        address = VALUES(address),
        encrypted_private_key = VALUES(encrypted_private_key),
        encrypted_mnemonic = VALUES(encrypted_mnemonic),
        updated_at = VALUES(updated_at)`

	now := time.Now().Unix()
	var mnemonic any
	if wallet.EncryptedMnemonic != "" {
		mnemonic = wallet.EncryptedMnemonic
	}
	if _, err := s.db.ExecContext(ctx, stmt,
		userID, wallet.Address, wallet.EncryptedPrivateKey, mnemonic, now, now); err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "写入钱包失败")
	}
	return nil
}

// Close 释放连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
