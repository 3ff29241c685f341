package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"BondingBot/internal/chain"
)

var (
	testTxHash   = common.HexToHash("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	testFactory  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	testToken    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCreator  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

type fakeSub struct {
	errCh chan error
	done  chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{errCh: make(chan error, 1), done: make(chan struct{})}
}

func (s *fakeSub) Unsubscribe() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *fakeSub) Err() <-chan error { return s.errCh }

// fakeGateway simulates chain timing: the receipt lands after receiptDelay,
// a matching log (when emitLog is set) after logDelay. logTxHash overrides
// the transaction hash stamped on the emitted log.
type fakeGateway struct {
	receiptDelay  time.Duration
	receiptStatus uint64
	emitLog       bool
	logDelay      time.Duration
	logTxHash     common.Hash
	sendErr       error
}

func (g *fakeGateway) SendContractCall(_ context.Context, _ *ecdsa.PrivateKey, _ chain.ContractCall) (common.Hash, error) {
	if g.sendErr != nil {
		return common.Hash{}, g.sendErr
	}
	return testTxHash, nil
}

func (g *fakeGateway) WaitForReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(g.receiptDelay):
	}
	return &coretypes.Receipt{Status: g.receiptStatus, TxHash: txHash}, nil
}

func (g *fakeGateway) SubscribeLogs(_ context.Context, query gethcore.FilterQuery) (*chain.EventSubscription, error) {
	logs := make(chan coretypes.Log, 1)
	sub := newFakeSub()
	if g.emitLog {
		logTxHash := g.logTxHash
		if logTxHash == (common.Hash{}) {
			logTxHash = testTxHash
		}
		go func() {
			select {
			case <-sub.done:
			case <-time.After(g.logDelay):
				logs <- coretypes.Log{
					Address: testFactory,
					TxHash:  logTxHash,
					Topics: []common.Hash{
						query.Topics[0][0],
						common.BytesToHash(testToken.Bytes()),
						common.BytesToHash(testCreator.Bytes()),
					},
				}
			}
		}()
	}
	return chain.NewEventSubscription(logs, sub), nil
}

func (g *fakeGateway) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (g *fakeGateway) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (g *fakeGateway) Close() {}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func plainRequest() Request {
	return Request{
		Operation: "buy",
		Call: chain.ContractCall{
			Contract: testContract,
			ABI:      chain.TradingHubABI,
			Method:   "buy",
			GasLimit: 30_000_000,
		},
	}
}

func correlatedRequest(timeout time.Duration) Request {
	req := Request{
		Operation: "create-token",
		Call: chain.ContractCall{
			Contract: testFactory,
			ABI:      chain.FactoryABI,
			Method:   "createNewMeme",
		},
	}
	req.Correlation = &Correlation{
		Contract: testFactory,
		Topic:    chain.TokenCreatedTopic,
		Timeout:  timeout,
	}
	return req
}

func TestSubmitConfirmedWithoutCorrelation(t *testing.T) {
	gw := &fakeGateway{receiptDelay: 5 * time.Millisecond, receiptStatus: coretypes.ReceiptStatusSuccessful}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), plainRequest(), testKey(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome.Status)
	}
	if outcome.TxHash != testTxHash {
		t.Fatalf("unexpected tx hash: %s", outcome.TxHash)
	}
}

func TestSubmitRevertedTransactionFails(t *testing.T) {
	gw := &fakeGateway{receiptDelay: time.Millisecond, receiptStatus: coretypes.ReceiptStatusFailed}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), plainRequest(), testKey(t))
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if outcome.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
	if outcome.TxHash != testTxHash {
		t.Fatal("tx hash must be reported even on failure")
	}
}

func TestSubmitBroadcastRejection(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("nonce too low")}
	o := New(gw)

	if _, err := o.Submit(context.Background(), plainRequest(), testKey(t)); !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
}

func TestSubmitCorrelationReceiptAndEvent(t *testing.T) {
	gw := &fakeGateway{
		receiptDelay:  5 * time.Millisecond,
		receiptStatus: coretypes.ReceiptStatusSuccessful,
		emitLog:       true,
		logDelay:      10 * time.Millisecond,
	}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), correlatedRequest(time.Second), testKey(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome.Status)
	}
	if outcome.Event == nil {
		t.Fatal("expected correlated event")
	}
	if outcome.Event.TokenAddress != testToken {
		t.Fatalf("decoded token address %s, want %s", outcome.Event.TokenAddress, testToken)
	}
	if outcome.Event.CreatorAddress != testCreator {
		t.Fatalf("decoded creator address %s, want %s", outcome.Event.CreatorAddress, testCreator)
	}
}

func TestSubmitCorrelationTimesOutDespiteReceipt(t *testing.T) {
	// 回执先到，事件晚于超时：结果必须是 timed_out 而非 confirmed。
	gw := &fakeGateway{
		receiptDelay:  5 * time.Millisecond,
		receiptStatus: coretypes.ReceiptStatusSuccessful,
		emitLog:       true,
		logDelay:      500 * time.Millisecond,
	}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), correlatedRequest(50*time.Millisecond), testKey(t))
	if !errors.Is(err, ErrCorrelationTimeout) {
		t.Fatalf("expected ErrCorrelationTimeout, got %v", err)
	}
	if outcome.Status != StatusTimedOut {
		t.Fatalf("expected timed_out, got %s", outcome.Status)
	}
	if outcome.TxHash != testTxHash {
		t.Fatal("tx hash must be reported so the user can check status independently")
	}
}

func TestSubmitCorrelationEventBeforeReceipt(t *testing.T) {
	gw := &fakeGateway{
		receiptDelay:  30 * time.Millisecond,
		receiptStatus: coretypes.ReceiptStatusSuccessful,
		emitLog:       true,
		logDelay:      time.Millisecond,
	}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), correlatedRequest(time.Second), testKey(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusConfirmed || outcome.Event == nil {
		t.Fatalf("expected confirmed with event, got %+v", outcome)
	}
}

func TestSubmitCorrelationIgnoresOtherTransactionsLogs(t *testing.T) {
	// 并发创建场景：别人的 TokenCreated 日志不得被当作本次提交的结果。
	gw := &fakeGateway{
		receiptDelay:  5 * time.Millisecond,
		receiptStatus: coretypes.ReceiptStatusSuccessful,
		emitLog:       true,
		logDelay:      time.Millisecond,
		logTxHash:     common.HexToHash("0x1234123412341234123412341234123412341234123412341234123412341234"),
	}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), correlatedRequest(50*time.Millisecond), testKey(t))
	if !errors.Is(err, ErrCorrelationTimeout) {
		t.Fatalf("expected ErrCorrelationTimeout, got %v", err)
	}
	if outcome.Status != StatusTimedOut {
		t.Fatalf("expected timed_out, got %s", outcome.Status)
	}
	if outcome.Event != nil {
		t.Fatalf("foreign log must not correlate: %+v", outcome.Event)
	}
}

func TestSubmitCorrelationRevertWinsOverEvent(t *testing.T) {
	gw := &fakeGateway{
		receiptDelay:  time.Millisecond,
		receiptStatus: coretypes.ReceiptStatusFailed,
		emitLog:       true,
		logDelay:      500 * time.Millisecond,
	}
	o := New(gw)

	outcome, err := o.Submit(context.Background(), correlatedRequest(time.Second), testKey(t))
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if outcome.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
}
