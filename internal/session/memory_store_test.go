package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), 42); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestMemoryStorePutGetReplace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Wallet{
		Address:             "0x1111111111111111111111111111111111111111",
		EncryptedPrivateKey: "cipher-one",
		EncryptedMnemonic:   "cipher-words",
	}
	if err := store.Put(ctx, 7, first); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != first.Address || got.EncryptedPrivateKey != first.EncryptedPrivateKey {
		t.Fatalf("unexpected wallet: %+v", got)
	}

	// Store 返回的是副本，调用方修改不应影响存储内容。
	got.EncryptedPrivateKey = "mutated"
	again, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.EncryptedPrivateKey != "cipher-one" {
		t.Fatalf("store leaked internal state: %+v", again)
	}

	// 重新导入等价于整体替换。
	second := &Wallet{
		Address:             "0x2222222222222222222222222222222222222222",
		EncryptedPrivateKey: "cipher-two",
	}
	if err := store.Put(ctx, 7, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	replaced, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get replaced: %v", err)
	}
	if replaced.Address != second.Address || replaced.EncryptedMnemonic != "" {
		t.Fatalf("replacement kept stale fields: %+v", replaced)
	}
}

func TestMemoryStorePutNil(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Put(context.Background(), 1, nil); err == nil {
		t.Fatal("expected error for nil wallet")
	}
}

func TestMemoryStoreUsersAreDisjoint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, 1, &Wallet{Address: "0xaaa", EncryptedPrivateKey: "a"}); err != nil {
		t.Fatalf("put user 1: %v", err)
	}
	if _, err := store.Get(ctx, 2); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("user 2 should have no wallet, got %v", err)
	}
}
