package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	gethevent "github.com/ethereum/go-ethereum/event"
)

// Gateway defines the chain operations the rest of the system relies on, so
// the orchestrator and bot layers can be tested against a fake network.
type Gateway interface {
	// SendContractCall signs and broadcasts a state-changing contract call,
	// returning the transaction hash of the pending submission.
	SendContractCall(ctx context.Context, key *ecdsa.PrivateKey, call ContractCall) (common.Hash, error)
	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	// SubscribeLogs attaches a log subscription matching the query.
	SubscribeLogs(ctx context.Context, query gethcore.FilterQuery) (*EventSubscription, error)
	// TokenBalance reads an ERC20 balance without submitting a transaction.
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	// NativeBalance reads the native-unit balance of an account.
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	// Close releases network connections held by the gateway.
	Close()
}

// ContractCall describes a single signed contract invocation. GasLimit is a
// fixed ceiling chosen per operation; no estimation happens downstream.
type ContractCall struct {
	Contract common.Address
	ABI      string
	Method   string
	Args     []any
	Value    *big.Int
	GasLimit uint64
}

// EventSubscription wraps a log subscription so callers can manage lifecycle
// without depending on the go-ethereum event package.
type EventSubscription struct {
	logs <-chan coretypes.Log
	sub  gethevent.Subscription
}

// NewEventSubscription constructs a managed subscription wrapper.
func NewEventSubscription(logs <-chan coretypes.Log, sub gethevent.Subscription) *EventSubscription {
	return &EventSubscription{logs: logs, sub: sub}
}

// Logs returns the channel that receives blockchain logs.
func (e *EventSubscription) Logs() <-chan coretypes.Log {
	return e.logs
}

// Err forwards the subscription error channel.
func (e *EventSubscription) Err() <-chan error {
	if e == nil || e.sub == nil {
		return nil
	}
	return e.sub.Err()
}

// Close terminates the subscription.
func (e *EventSubscription) Close() {
	if e == nil || e.sub == nil {
		return
	}
	e.sub.Unsubscribe()
}
