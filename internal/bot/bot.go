package bot

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"BondingBot/internal/chain"
	"BondingBot/internal/conversation"
	xerrors "BondingBot/internal/errors"
	"BondingBot/internal/orchestrator"
	"BondingBot/internal/outcome"
	"BondingBot/internal/session"
	"BondingBot/internal/vault"
	"BondingBot/pkg/logger"
)

// Replier 是向用户回发消息的出站通道。
type Replier interface {
	Reply(ctx context.Context, userID int64, text string) error
}

// Submitter 抽象交易编排器，便于测试替换。
type Submitter interface {
	Submit(ctx context.Context, req orchestrator.Request, key *ecdsa.PrivateKey) (orchestrator.Outcome, error)
}

// Config 描述命令层需要的合约与超时参数。
type Config struct {
	FactoryAddress    common.Address
	TradingHubAddress common.Address
	EventTimeout      time.Duration
}

// 各操作固定的 gas 上限，不做估算。
const (
	createGasLimit = 5_000_000
	buyGasLimit    = 30_000_000
	sellGasLimit   = 500_000
)

const welcomeMessage = `Welcome to BondingBot!
Here are the actions you can perform:
/importWallet to import an already existing wallet
/generateWallet to create a fresh wallet
/showWalletAddress to view your wallet address
/createNewMemeToken to create a new token
/buy to purchase a token
/sell to sell a token
/checkBalance to check your token balance
/cancel to abort the current operation`

// Bot 将固定的命令集合映射到会话流程，并把收集完成的操作交给
// 钱包、存储与交易编排各层。
type Bot struct {
	cfg       Config
	engine    *conversation.Engine
	vault     *vault.Vault
	store     session.Store
	submitter Submitter
	gateway   chain.Gateway
	publisher outcome.Publisher
	replier   Replier
	logger    *slog.Logger
}

// New 构造 Bot 并注册全部会话流程。
func New(cfg Config, v *vault.Vault, store session.Store, submitter Submitter, gateway chain.Gateway, publisher outcome.Publisher, replier Replier) *Bot {
	b := &Bot{
		cfg:       cfg,
		vault:     v,
		store:     store,
		submitter: submitter,
		gateway:   gateway,
		publisher: publisher,
		replier:   replier,
		logger:    logger.Named("bot"),
	}
	if b.cfg.EventTimeout <= 0 {
		b.cfg.EventTimeout = 120 * time.Second
	}
	b.engine = conversation.NewEngine(b.buildFlows())
	return b
}

// 命令到操作的闭合映射。
var commandOperations = map[string]conversation.Operation{
	"/importWallet":       conversation.OpImportWallet,
	"/generateWallet":     conversation.OpGenerateWallet,
	"/showWalletAddress":  conversation.OpShowWallet,
	"/createNewMemeToken": conversation.OpCreateToken,
	"/buy":                conversation.OpBuyToken,
	"/sell":               conversation.OpSellToken,
	"/checkBalance":       conversation.OpCheckBalance,
}

// HandleUpdate 处理一条入站消息：进行中的会话优先消费输入，
// 否则按命令分发。每个错误恰好产生一条用户可见的消息。
func (b *Bot) HandleUpdate(ctx context.Context, userID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	replies, handled, err := b.engine.Submit(ctx, userID, text)
	if handled {
		b.sendAll(ctx, userID, replies)
		if err != nil {
			b.send(ctx, userID, b.userMessage(err))
		}
		if !b.engine.Active(userID) {
			// 会话结束后重发菜单，与原始交互保持一致。
			b.send(ctx, userID, welcomeMessage)
		}
		return
	}

	b.dispatchCommand(ctx, userID, text)
}

func (b *Bot) dispatchCommand(ctx context.Context, userID int64, text string) {
	command := strings.Fields(text)[0]
	// Telegram 群组内命令会带 @botname 后缀。
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/start", "/help":
		b.send(ctx, userID, welcomeMessage)
		return
	case "/cancel":
		if ack, ok := b.engine.Cancel(userID); ok {
			b.send(ctx, userID, ack)
		} else {
			b.send(ctx, userID, "Nothing to cancel.")
		}
		b.send(ctx, userID, welcomeMessage)
		return
	}

	op, ok := commandOperations[command]
	if !ok {
		b.send(ctx, userID, welcomeMessage)
		return
	}

	replies, err := b.engine.Enter(ctx, userID, op)
	b.sendAll(ctx, userID, replies)
	if err != nil {
		b.send(ctx, userID, b.userMessage(err))
	}
	if !b.engine.Active(userID) {
		b.send(ctx, userID, welcomeMessage)
	}
}

// userMessage 将错误码翻译为一条用户可见的提示。
func (b *Bot) userMessage(err error) string {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidCredential:
		return "This does not appear to be a valid private key / mnemonic phrase. Please try again."
	case xerrors.CodeNoCredential:
		return "You haven't imported a wallet yet. Please use the /importWallet command to import your wallet."
	case xerrors.CodeOperationInProgress:
		return "You already have an operation in progress. Send /cancel to abort it first."
	case xerrors.CodeCorrelationTimeout:
		return "Timed out waiting for the confirmation event. The transaction may still succeed on-chain; please check its status independently before retrying."
	case xerrors.CodePersistenceFailure:
		return "Something went wrong while saving your wallet. Please try again later."
	case xerrors.CodeInvalidArgument:
		if e, ok := xerrors.From(err); ok && e.Message() != "" {
			return e.Message()
		}
		return "That input does not look right. Please try again."
	case xerrors.CodeChainSubmission:
		return fmt.Sprintf("Error submitting transaction: %s", shortMessage(err))
	default:
		return "Something went wrong. Please try again."
	}
}

// shortMessage 提取最内层原因并截断，避免把整条 RPC 报错刷给用户。
func shortMessage(err error) string {
	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	msg := cause.Error()
	if len(msg) > 120 {
		msg = msg[:120] + "…"
	}
	return msg
}

func (b *Bot) send(ctx context.Context, userID int64, text string) {
	if text == "" {
		return
	}
	if err := b.replier.Reply(ctx, userID, text); err != nil {
		b.logger.Error("回复用户失败",
			slog.Int64("user_id", userID),
			slog.Any("cause", err))
	}
}

func (b *Bot) sendAll(ctx context.Context, userID int64, replies []string) {
	for _, reply := range replies {
		b.send(ctx, userID, reply)
	}
}

func (b *Bot) publishOutcome(ctx context.Context, record outcome.Record) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, record); err != nil {
		// 流水发布失败不影响用户侧结果。
		b.logger.Warn("发布交易流水失败",
			slog.String("record_id", record.ID),
			slog.Any("cause", err))
	}
}
