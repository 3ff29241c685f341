package bot

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"BondingBot/internal/chain"
	"BondingBot/internal/orchestrator"
	"BondingBot/internal/outcome"
	"BondingBot/internal/session"
	"BondingBot/internal/vault"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe512961708279f1d9f94a1e7abc7d0d"

type fakeReplier struct {
	mu       sync.Mutex
	messages []string
}

func (r *fakeReplier) Reply(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func (r *fakeReplier) find(t *testing.T, substr string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if strings.Contains(msg, substr) {
			return msg
		}
	}
	t.Fatalf("no reply containing %q, got %q", substr, r.messages)
	return ""
}

func (r *fakeReplier) absent(t *testing.T, substr string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if strings.Contains(msg, substr) {
			t.Fatalf("unexpected reply containing %q: %q", substr, msg)
		}
	}
}

func (r *fakeReplier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []orchestrator.Request
	out      orchestrator.Outcome
	err      error
}

func (s *fakeSubmitter) Submit(_ context.Context, req orchestrator.Request, _ *ecdsa.PrivateKey) (orchestrator.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.out, s.err
}

func (s *fakeSubmitter) last(t *testing.T) orchestrator.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no requests submitted")
	}
	return s.requests[len(s.requests)-1]
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fakeGateway struct {
	tokenBalance *big.Int
}

func (g *fakeGateway) SendContractCall(context.Context, *ecdsa.PrivateKey, chain.ContractCall) (common.Hash, error) {
	return common.Hash{}, nil
}

func (g *fakeGateway) WaitForReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	return nil, nil
}

func (g *fakeGateway) SubscribeLogs(context.Context, gethcore.FilterQuery) (*chain.EventSubscription, error) {
	return nil, nil
}

func (g *fakeGateway) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return g.tokenBalance, nil
}

func (g *fakeGateway) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (g *fakeGateway) Close() {}

type fixture struct {
	bot       *Bot
	replier   *fakeReplier
	submitter *fakeSubmitter
	gateway   *fakeGateway
	store     *session.MemoryStore
	publisher *outcome.MemoryPublisher
	vault     *vault.Vault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.New("unit-test-encryption-secret")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	f := &fixture{
		replier:   &fakeReplier{},
		submitter: &fakeSubmitter{},
		gateway:   &fakeGateway{tokenBalance: big.NewInt(0)},
		store:     session.NewMemoryStore(),
		publisher: outcome.NewMemoryPublisher(),
		vault:     v,
	}
	f.bot = New(Config{
		FactoryAddress:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TradingHubAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}, v, f.store, f.submitter, f.gateway, f.publisher, f.replier)
	return f
}

func (f *fixture) importWallet(t *testing.T, userID int64) common.Address {
	t.Helper()
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, userID, "/importWallet")
	f.bot.HandleUpdate(ctx, userID, testPrivateKey)
	key, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestGenerateThenShowWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, 1, "/generateWallet")
	generated := f.replier.find(t, "Your new wallet address is: ")
	address := strings.TrimPrefix(generated, "Your new wallet address is: ")
	if !common.IsHexAddress(address) {
		t.Fatalf("generated reply does not carry an address: %q", generated)
	}
	f.replier.find(t, "Your recovery phrase is:")

	f.replier.reset()
	f.bot.HandleUpdate(ctx, 1, "/showWalletAddress")
	shown := f.replier.find(t, "Your wallet address is: ")
	if got := strings.TrimPrefix(shown, "Your wallet address is: "); got != address {
		t.Fatalf("shown address %q differs from generated %q", got, address)
	}
}

func TestShowWalletWithoutCredential(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), 1, "/showWalletAddress")

	f.replier.find(t, "You haven't imported a wallet yet")
}

func TestImportWalletFlow(t *testing.T) {
	f := newFixture(t)

	address := f.importWallet(t, 7)

	f.replier.find(t, "Please provide either the private key")
	f.replier.find(t, "Your wallet address is: "+address.Hex())

	stored, err := f.store.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("wallet not stored: %v", err)
	}
	if stored.Address != address.Hex() {
		t.Fatalf("stored address %q, want %q", stored.Address, address.Hex())
	}
	if stored.EncryptedPrivateKey == testPrivateKey {
		t.Fatal("private key stored in plaintext")
	}
}

func TestImportWalletRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, 7, "/importWallet")
	f.bot.HandleUpdate(ctx, 7, "definitely-not-a-key")

	f.replier.find(t, "does not appear to be a valid private key")
	// 会话已回到空闲态，普通文本不再被消费。
	f.replier.reset()
	f.bot.HandleUpdate(ctx, 7, "hello")
	f.replier.find(t, "Welcome to BondingBot!")
}

func TestBuyFlowSubmitsTradingHubCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 3)

	f.submitter.out = orchestrator.Outcome{
		Status: orchestrator.StatusConfirmed,
		TxHash: common.HexToHash("0xaaaa"),
	}

	token := "0x3333333333333333333333333333333333333333"
	receiver := "0x4444444444444444444444444444444444444444"
	f.bot.HandleUpdate(ctx, 3, "/buy")
	f.bot.HandleUpdate(ctx, 3, token)
	f.bot.HandleUpdate(ctx, 3, "1.5")
	f.bot.HandleUpdate(ctx, 3, receiver)
	f.bot.HandleUpdate(ctx, 3, "0.25")

	req := f.submitter.last(t)
	if req.Call.Method != "buy" {
		t.Fatalf("unexpected method %q", req.Call.Method)
	}
	if req.Call.GasLimit != buyGasLimit {
		t.Fatalf("unexpected gas limit %d, want %d", req.Call.GasLimit, buyGasLimit)
	}
	wantValue, _ := chain.ParseUnits("0.25", chain.NativeDecimals)
	if req.Call.Value.Cmp(wantValue) != 0 {
		t.Fatalf("unexpected value %s, want %s", req.Call.Value, wantValue)
	}
	if req.Correlation != nil {
		t.Fatal("buy must not carry an event correlation")
	}
	f.replier.find(t, "purchased successfully")

	records := f.publisher.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 outcome record, got %d", len(records))
	}
	if records[0].Status != string(orchestrator.StatusConfirmed) || records[0].Operation != "buy" {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if records[0].ID == "" {
		t.Fatal("record missing id")
	}
}

func TestSellFlowSubmitsTradingHubCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 4)

	f.submitter.out = orchestrator.Outcome{
		Status: orchestrator.StatusConfirmed,
		TxHash: common.HexToHash("0xbbbb"),
	}

	f.bot.HandleUpdate(ctx, 4, "/sell")
	f.bot.HandleUpdate(ctx, 4, "0x3333333333333333333333333333333333333333")
	f.bot.HandleUpdate(ctx, 4, "10")
	f.bot.HandleUpdate(ctx, 4, "0x4444444444444444444444444444444444444444")
	f.bot.HandleUpdate(ctx, 4, "0")

	req := f.submitter.last(t)
	if req.Call.Method != "sell" {
		t.Fatalf("unexpected method %q", req.Call.Method)
	}
	if req.Call.GasLimit != sellGasLimit {
		t.Fatalf("unexpected gas limit %d, want %d", req.Call.GasLimit, sellGasLimit)
	}
	f.replier.find(t, "sold successfully")
}

func TestCreateTokenReportsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 5)

	tokenAddr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	creatorAddr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	f.submitter.out = orchestrator.Outcome{
		Status: orchestrator.StatusConfirmed,
		TxHash: common.HexToHash("0xcccc"),
		Event: &orchestrator.CorrelatedEvent{
			TokenAddress:   tokenAddr,
			CreatorAddress: creatorAddr,
		},
	}

	f.bot.HandleUpdate(ctx, 5, "/createNewMemeToken")
	f.bot.HandleUpdate(ctx, 5, "Pepe")
	f.bot.HandleUpdate(ctx, 5, "PEPE")
	f.bot.HandleUpdate(ctx, 5, "1.0")

	req := f.submitter.last(t)
	if req.Call.Method != "createNewMeme" {
		t.Fatalf("unexpected method %q", req.Call.Method)
	}
	if req.Call.GasLimit != createGasLimit {
		t.Fatalf("unexpected gas limit %d, want %d", req.Call.GasLimit, createGasLimit)
	}
	if req.Call.GasLimit == 0 {
		t.Fatal("a zero gas limit would be rejected by the node")
	}
	if req.Correlation == nil || req.Correlation.Topic != chain.TokenCreatedTopic {
		t.Fatalf("missing event correlation: %+v", req.Correlation)
	}

	f.replier.find(t, "---- Creating Pepe token ----")
	f.replier.find(t, "Token created successfully!")
	f.replier.find(t, "Token address: "+tokenAddr.Hex())
	f.replier.find(t, "Creator address: "+creatorAddr.Hex())

	records := f.publisher.Records()
	if len(records) != 1 || records[0].TokenAddress != tokenAddr.Hex() {
		t.Fatalf("unexpected outcome records %+v", records)
	}
}

func TestCreateTokenTimeoutKeepsTxHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 6)

	txHash := common.HexToHash("0xdddd")
	f.submitter.out = orchestrator.Outcome{Status: orchestrator.StatusTimedOut, TxHash: txHash}
	f.submitter.err = orchestrator.ErrCorrelationTimeout

	f.bot.HandleUpdate(ctx, 6, "/createNewMemeToken")
	f.bot.HandleUpdate(ctx, 6, "Pepe")
	f.bot.HandleUpdate(ctx, 6, "PEPE")
	f.bot.HandleUpdate(ctx, 6, "1.0")

	f.replier.find(t, "Timed out waiting for the confirmation event")
	f.replier.absent(t, "Token created successfully!")

	records := f.publisher.Records()
	if len(records) != 1 || records[0].Status != string(orchestrator.StatusTimedOut) {
		t.Fatalf("timeout outcome not journaled: %+v", records)
	}
	if records[0].TxHash != txHash.Hex() {
		t.Fatalf("record tx hash %q, want %q", records[0].TxHash, txHash.Hex())
	}
}

func TestCancelMidFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 8)
	f.replier.reset()

	f.bot.HandleUpdate(ctx, 8, "/buy")
	f.bot.HandleUpdate(ctx, 8, "/cancel")

	f.replier.find(t, "Operation cancelled.")
	f.replier.find(t, "Welcome to BondingBot!")
	if f.submitter.count() != 0 {
		t.Fatal("cancelled flow must not submit")
	}
}

func TestCheckBalanceFormatsUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 9)

	f.gateway.tokenBalance, _ = chain.ParseUnits("2.5", chain.NativeDecimals)

	f.bot.HandleUpdate(ctx, 9, "/checkBalance")
	f.bot.HandleUpdate(ctx, 9, "0x3333333333333333333333333333333333333333")

	f.replier.find(t, "Your balance is 2.5")
}

func TestCheckBalanceRejectsBadAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importWallet(t, 10)

	f.bot.HandleUpdate(ctx, 10, "/checkBalance")
	f.bot.HandleUpdate(ctx, 10, "not-an-address")

	f.replier.find(t, "Please provide a valid token address.")
}

func TestTradeWithoutWalletFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, 11, "/buy")
	f.bot.HandleUpdate(ctx, 11, "0x3333333333333333333333333333333333333333")
	f.bot.HandleUpdate(ctx, 11, "1")
	f.bot.HandleUpdate(ctx, 11, "0x4444444444444444444444444444444444444444")
	f.bot.HandleUpdate(ctx, 11, "1")

	f.replier.find(t, "You haven't imported a wallet yet")
	if f.submitter.count() != 0 {
		t.Fatal("trade without a wallet must not submit")
	}
}

func TestUnknownCommandShowsWelcome(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), 12, "/frobnicate")

	f.replier.find(t, "Welcome to BondingBot!")
}
