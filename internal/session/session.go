package session

import (
	"context"

	xerrors "BondingBot/internal/errors"
)

// Wallet 保存用户钱包的持久化形态。私钥与助记词只会以密文形式出现，
// 明文密钥从不进入存储层。
type Wallet struct {
	Address             string `json:"address"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	EncryptedMnemonic   string `json:"encrypted_mnemonic,omitempty"`
}

// Session 描述一个用户的完整会话记录。
type Session struct {
	UserID    int64   `json:"user_id"`
	Wallet    *Wallet `json:"wallet,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

var (
	// ErrWalletNotFound 表示该用户尚未导入或生成钱包。
	ErrWalletNotFound = xerrors.New(xerrors.CodeNoCredential, "该用户未存储钱包")
	// ErrStoreUnavailable 表示存储后端不可用。
	ErrStoreUnavailable = xerrors.New(xerrors.CodePersistenceFailure, "会话存储不可用")
)

// Store 定义按用户持久化钱包的能力。实现必须保证同一用户的读写
// 线性化；不同用户拥有互不相交的键，无需跨用户加锁。
type Store interface {
	// Get 返回用户已存储的钱包，未找到时返回 ErrWalletNotFound。
	Get(ctx context.Context, userID int64) (*Wallet, error)
	// Put 写入（或替换）用户的钱包。显式重新导入即为整体替换。
	Put(ctx context.Context, userID int64, wallet *Wallet) error
	// Close 释放底层连接。
	Close() error
}

func cloneWallet(w *Wallet) *Wallet {
	if w == nil {
		return nil
	}
	clone := *w
	return &clone
}
