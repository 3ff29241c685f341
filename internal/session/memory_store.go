package session

import (
	"context"
	"sync"

	xerrors "BondingBot/internal/errors"
)

// MemoryStore 以内存方式保存会话，主要用于测试与本地开发。
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[int64]*Wallet
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[int64]*Wallet)}
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wallet, ok := m.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneWallet(wallet), nil
}

// Put 实现 Store 接口。
func (m *MemoryStore) Put(_ context.Context, userID int64, wallet *Wallet) error {
	if wallet == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[userID] = cloneWallet(wallet)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}
