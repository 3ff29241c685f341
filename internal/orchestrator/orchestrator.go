package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"BondingBot/internal/chain"
	xerrors "BondingBot/internal/errors"
	"BondingBot/pkg/logger"
)

// Status 表示一次提交的最终状态。
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

var (
	// ErrSubmissionFailed 表示交易被节点拒绝或上链后回滚。
	ErrSubmissionFailed = xerrors.New(xerrors.CodeChainSubmission, "")
	// ErrCorrelationTimeout 表示回执与事件未能在时限内同时到达。
	// 交易可能仍在链上成功，调用方应提示用户自行核验而非当作失败。
	ErrCorrelationTimeout = xerrors.New(xerrors.CodeCorrelationTimeout, "")
)

// Correlation 描述需要从事件日志中提取结果的提交。
type Correlation struct {
	Contract common.Address
	Topic    common.Hash
	Timeout  time.Duration
}

// Request 描述一次完整收集后待提交的交易。
type Request struct {
	Operation   string
	Call        chain.ContractCall
	Correlation *Correlation
}

// CorrelatedEvent 保存从匹配日志的 indexed 字段中解出的地址。
type CorrelatedEvent struct {
	TokenAddress   common.Address
	CreatorAddress common.Address
}

// Outcome 是一次提交的结果。TxHash 在广播成功后始终可用，即便最终
// 因事件超时而无法确认。
type Outcome struct {
	Status Status
	TxHash common.Hash
	Event  *CorrelatedEvent
}

// Orchestrator 负责构建、签名、广播交易并等待确认。提交不具备幂等性，
// 失败后绝不自动重试，是否重发由用户重新发起会话决定。
type Orchestrator struct {
	gateway        chain.Gateway
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// Option 定义可选配置。
type Option func(*Orchestrator)

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = log
	}
}

// WithEventTimeout 覆盖事件关联的默认超时时间。
func WithEventTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.defaultTimeout = timeout
		}
	}
}

// New 构造 Orchestrator。
func New(gateway chain.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:        gateway,
		defaultTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("orchestrator")
	}
	return o
}

// Submit 签名并广播请求描述的交易，随后等待链上确认。带事件关联的
// 请求还需在时限内等到匹配日志，两者齐备才算确认。
func (o *Orchestrator) Submit(ctx context.Context, req Request, key *ecdsa.PrivateKey) (Outcome, error) {
	var sub *chain.EventSubscription
	if req.Correlation != nil {
		// 先订阅再广播，避免事件在订阅建立前到达而被错过。
		var err error
		sub, err = o.gateway.SubscribeLogs(ctx, gethcore.FilterQuery{
			Addresses: []common.Address{req.Correlation.Contract},
			Topics:    [][]common.Hash{{req.Correlation.Topic}},
		})
		if err != nil {
			return Outcome{Status: StatusFailed}, xerrors.Wrap(xerrors.CodeChainSubmission, err, "建立事件订阅失败")
		}
		defer sub.Close()
	}

	txHash, err := o.gateway.SendContractCall(ctx, key, req.Call)
	if err != nil {
		return Outcome{Status: StatusFailed}, xerrors.Wrap(xerrors.CodeChainSubmission, err, "广播交易失败")
	}
	o.logger.Info("交易已广播",
		slog.String("operation", req.Operation),
		slog.String("tx_hash", txHash.Hex()))

	if req.Correlation == nil {
		return o.awaitReceipt(ctx, req, txHash)
	}
	return o.awaitReceiptAndEvent(ctx, req, txHash, sub)
}

func (o *Orchestrator) awaitReceipt(ctx context.Context, req Request, txHash common.Hash) (Outcome, error) {
	receipt, err := o.gateway.WaitForReceipt(ctx, txHash)
	if err != nil {
		return Outcome{Status: StatusFailed, TxHash: txHash},
			xerrors.Wrap(xerrors.CodeChainSubmission, err, "等待交易回执失败")
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		o.logger.Warn("交易上链后回滚",
			slog.String("operation", req.Operation),
			slog.String("tx_hash", txHash.Hex()))
		return Outcome{Status: StatusFailed, TxHash: txHash},
			xerrors.New(xerrors.CodeChainSubmission, "交易执行回滚")
	}
	return Outcome{Status: StatusConfirmed, TxHash: txHash}, nil
}

// awaitReceiptAndEvent 让回执等待与事件订阅同时进行，并以一个定时器
// 约束整个关联过程：先到者生效，超时则整体判定为 timed_out。
func (o *Orchestrator) awaitReceiptAndEvent(ctx context.Context, req Request, txHash common.Hash, sub *chain.EventSubscription) (Outcome, error) {
	timeout := req.Correlation.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	receiptCtx, cancelReceipt := context.WithCancel(ctx)
	defer cancelReceipt()

	type receiptResult struct {
		receipt *coretypes.Receipt
		err     error
	}
	receiptCh := make(chan receiptResult, 1)
	go func() {
		receipt, err := o.gateway.WaitForReceipt(receiptCtx, txHash)
		receiptCh <- receiptResult{receipt: receipt, err: err}
	}()

	var (
		receiptDone bool
		event       *CorrelatedEvent
	)
	for {
		select {
		case <-ctx.Done():
			return Outcome{Status: StatusFailed, TxHash: txHash},
				xerrors.Wrap(xerrors.CodeChainSubmission, ctx.Err(), "提交被中断")

		case <-timer.C:
			// 即便回执已经到达，缺少关联事件也不能视为确认。
			o.logger.Warn("等待关联事件超时",
				slog.String("operation", req.Operation),
				slog.String("tx_hash", txHash.Hex()),
				slog.Bool("receipt_arrived", receiptDone))
			return Outcome{Status: StatusTimedOut, TxHash: txHash},
				xerrors.New(xerrors.CodeCorrelationTimeout, "")

		case res := <-receiptCh:
			if res.err != nil {
				return Outcome{Status: StatusFailed, TxHash: txHash},
					xerrors.Wrap(xerrors.CodeChainSubmission, res.err, "等待交易回执失败")
			}
			if res.receipt.Status != coretypes.ReceiptStatusSuccessful {
				return Outcome{Status: StatusFailed, TxHash: txHash},
					xerrors.New(xerrors.CodeChainSubmission, "交易执行回滚")
			}
			receiptDone = true
			if event != nil {
				return Outcome{Status: StatusConfirmed, TxHash: txHash, Event: event}, nil
			}

		case log, ok := <-sub.Logs():
			if !ok {
				return Outcome{Status: StatusFailed, TxHash: txHash},
					xerrors.New(xerrors.CodeChainSubmission, "事件订阅意外关闭")
			}
			matched, decoded := decodeEvent(req.Correlation.Topic, txHash, log)
			if !matched {
				continue
			}
			event = decoded
			if receiptDone {
				return Outcome{Status: StatusConfirmed, TxHash: txHash, Event: event}, nil
			}

		case err := <-sub.Err():
			return Outcome{Status: StatusFailed, TxHash: txHash},
				xerrors.Wrap(xerrors.CodeChainSubmission, err, "事件订阅失败")
		}
	}
}

// decodeEvent 只接受本次广播交易产生的日志，并发创建互不串扰。
func decodeEvent(topic common.Hash, txHash common.Hash, log coretypes.Log) (bool, *CorrelatedEvent) {
	if log.TxHash != txHash {
		return false, nil
	}
	if len(log.Topics) < 3 || log.Topics[0] != topic {
		return false, nil
	}
	return true, &CorrelatedEvent{
		TokenAddress:   chain.AddressFromTopic(log.Topics[1]),
		CreatorAddress: chain.AddressFromTopic(log.Topics[2]),
	}
}
