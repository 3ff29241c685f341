package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "BondingBot/internal/errors"
)

// RedisConfig 描述 Redis 存储的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// TTL 为 0 时钱包永不过期。
	TTL time.Duration
}

// RedisStore 将钱包以 JSON 形式存入 Redis。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 RedisStore 并校验连通性。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func walletKey(userID int64) string {
	return fmt.Sprintf("bondingbot:wallet:%d", userID)
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, userID int64) (*Wallet, error) {
	raw, err := s.client.Get(ctx, walletKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePersistenceFailure, err, "读取钱包失败")
	}

	var wallet Wallet
	if err := json.Unmarshal([]byte(raw), &wallet); err != nil {
		return nil, xerrors.Wrap(xerrors.CodePersistenceFailure, err, "解析钱包记录失败")
	}
	if s.ttl > 0 {
		// 读取时顺延过期时间，失败不影响本次请求。
		_ = s.client.Expire(ctx, walletKey(userID), s.ttl).Err()
	}
	return &wallet, nil
}

// Put 实现 Store 接口。
func (s *RedisStore) Put(ctx context.Context, userID int64, wallet *Wallet) error {
	if wallet == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet 不能为空")
	}
	raw, err := json.Marshal(wallet)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "序列化钱包失败")
	}
	if err := s.client.Set(ctx, walletKey(userID), raw, s.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodePersistenceFailure, err, "写入钱包失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
