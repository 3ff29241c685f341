package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM gateway client.
type Config struct {
	RPCURL              string
	WSURL               string
	ChainID             int64
	ReceiptPollInterval time.Duration
}

// Client implements the Gateway interface on top of go-ethereum.
type Client struct {
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	eventClient logSubscriber
	chainID     *big.Int
	pollEvery   time.Duration
}

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	// 日志订阅优先走 WebSocket 连接，HTTP 节点通常不支持订阅。
	eventClient := logSubscriber(eth)
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			eventClient = ethclient.NewClient(wsRPC)
		}
	}

	pollEvery := cfg.ReceiptPollInterval
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}

	return &Client{
		rpcClient:   rpcClient,
		eth:         eth,
		eventClient: eventClient,
		chainID:     chainID,
		pollEvery:   pollEvery,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if ec, ok := c.eventClient.(*ethclient.Client); ok && ec != c.eth {
		ec.Close()
	}
	c.eventClient = nil
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// SendContractCall packs, signs and broadcasts a contract invocation.
func (c *Client) SendContractCall(ctx context.Context, key *ecdsa.PrivateKey, call ContractCall) (common.Hash, error) {
	if key == nil {
		return common.Hash{}, errors.New("未提供签名密钥")
	}

	parsed, err := abi.JSON(strings.NewReader(call.ABI))
	if err != nil {
		return common.Hash{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}
	data, err := parsed.Pack(call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("编码调用参数失败: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("查询 nonce 失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("查询 gas 价格失败: %w", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := coretypes.NewTransaction(nonce, call.Contract, value, call.GasLimit, gasPrice, data)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("广播交易失败: %w", err)
	}
	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is cancelled.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubscribeLogs attaches a log subscription to the chain.
func (c *Client) SubscribeLogs(ctx context.Context, query gethcore.FilterQuery) (*EventSubscription, error) {
	if c == nil || c.eventClient == nil {
		return nil, errors.New("当前客户端不支持事件订阅")
	}
	logs := make(chan coretypes.Log, 64)
	sub, err := c.eventClient.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}
	return NewEventSubscription(logs, sub), nil
}

// TokenBalance reads balanceOf(account) from an ERC20 token.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("解析 ERC20 ABI 失败: %w", err)
	}
	data, err := parsed.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("编码 balanceOf 失败: %w", err)
	}
	raw, err := c.eth.CallContract(ctx, gethcore.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("查询代币余额失败: %w", err)
	}
	outputs, err := parsed.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("解码余额失败: %w", err)
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, errors.New("余额返回值类型异常")
	}
	return balance, nil
}

// NativeBalance reads the native-unit balance of an account.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}
