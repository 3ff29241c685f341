package bot

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"BondingBot/internal/chain"
	"BondingBot/internal/conversation"
	xerrors "BondingBot/internal/errors"
	"BondingBot/internal/orchestrator"
	"BondingBot/internal/outcome"
	"BondingBot/pkg/logger"
)

// buildFlows 注册全部会话流程。步骤表是编译期固定的，运行期只收集
// 字段值。
func (b *Bot) buildFlows() []*conversation.Flow {
	return []*conversation.Flow{
		{
			Operation: conversation.OpImportWallet,
			Steps: []conversation.Step{
				{Field: "credential", Prompt: "Please provide either the private key of the wallet you wish to import or a 12-word mnemonic phrase."},
			},
			Finalize: b.finalizeImportWallet,
		},
		{
			Operation: conversation.OpGenerateWallet,
			Finalize:  b.finalizeGenerateWallet,
		},
		{
			Operation: conversation.OpShowWallet,
			Finalize:  b.finalizeShowWallet,
		},
		{
			Operation: conversation.OpCreateToken,
			Steps: []conversation.Step{
				{Field: "name", Prompt: "Please provide the name of the token you wish to create."},
				{Field: "symbol", Prompt: "Please provide the symbol of the token."},
				{Field: "liquidity", Prompt: "Please provide the amount of initial liquidity for the token."},
			},
			Finalize: b.finalizeCreateToken,
		},
		{
			Operation: conversation.OpBuyToken,
			Steps: []conversation.Step{
				{Field: "tokenAddress", Prompt: "Please provide the address of the token you wish to purchase."},
				{Field: "minimumAmountOut", Prompt: "Please provide the minimum amount of tokens you expect to receive."},
				{Field: "receiverAddress", Prompt: "Please provide the address that will receive the tokens."},
				{Field: "amountIn", Prompt: "Please provide the amount you wish to spend."},
			},
			Finalize: b.finalizeBuyToken,
		},
		{
			Operation: conversation.OpSellToken,
			Steps: []conversation.Step{
				{Field: "tokenAddress", Prompt: "Please provide the address of the token you wish to sell."},
				{Field: "amount", Prompt: "Please provide the amount of tokens you wish to sell."},
				{Field: "receiverAddress", Prompt: "Please provide the address that will receive the proceeds."},
				{Field: "value", Prompt: "Please provide the native value to attach to the sale."},
			},
			Finalize: b.finalizeSellToken,
		},
		{
			Operation: conversation.OpCheckBalance,
			Steps: []conversation.Step{
				{Field: "tokenAddress", Prompt: "Please provide the address of the token you wish to check."},
			},
			Finalize: b.finalizeCheckBalance,
		},
	}
}

func (b *Bot) finalizeImportWallet(ctx context.Context, userID int64, fields map[string]string) ([]string, error) {
	wallet, err := b.vault.Import(fields["credential"], 0)
	if err != nil {
		return nil, err
	}
	if err := b.store.Put(ctx, userID, wallet); err != nil {
		return nil, err
	}
	logger.Audit().Info("wallet_imported",
		slog.Int64("user_id", userID),
		slog.String("address", wallet.Address))
	return []string{fmt.Sprintf("Your wallet address is: %s", wallet.Address)}, nil
}

func (b *Bot) finalizeGenerateWallet(ctx context.Context, userID int64, _ map[string]string) ([]string, error) {
	wallet, err := b.vault.Generate()
	if err != nil {
		return nil, err
	}
	mnemonic, err := b.vault.RevealMnemonic(wallet)
	if err != nil {
		return nil, err
	}
	if err := b.store.Put(ctx, userID, wallet); err != nil {
		return nil, err
	}
	logger.Audit().Info("wallet_generated",
		slog.Int64("user_id", userID),
		slog.String("address", wallet.Address))
	return []string{
		fmt.Sprintf("Your new wallet address is: %s", wallet.Address),
		fmt.Sprintf("Your recovery phrase is:\n%s\nWrite it down and keep it somewhere safe. It will not be shown again.", mnemonic),
	}, nil
}

func (b *Bot) finalizeShowWallet(ctx context.Context, userID int64, _ map[string]string) ([]string, error) {
	wallet, err := b.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Your wallet address is: %s", wallet.Address)}, nil
}

func (b *Bot) finalizeCheckBalance(ctx context.Context, userID int64, fields map[string]string) ([]string, error) {
	token, err := parseAddress(fields["tokenAddress"], "token address")
	if err != nil {
		return nil, err
	}
	wallet, err := b.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := b.gateway.TokenBalance(ctx, token, common.HexToAddress(wallet.Address))
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Your balance is %s", chain.FormatUnits(balance, chain.NativeDecimals))}, nil
}

func (b *Bot) finalizeCreateToken(ctx context.Context, userID int64, fields map[string]string) ([]string, error) {
	liquidity, err := chain.ParseUnits(fields["liquidity"], chain.NativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Please provide a valid liquidity amount.")
	}
	key, err := b.signingKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	b.send(ctx, userID, fmt.Sprintf("---- Creating %s token ----", fields["name"]))

	out, err := b.submitter.Submit(ctx, orchestrator.Request{
		Operation: string(conversation.OpCreateToken),
		Call: chain.ContractCall{
			Contract: b.cfg.FactoryAddress,
			ABI:      chain.FactoryABI,
			Method:   "createNewMeme",
			Args:     []any{fields["name"], fields["symbol"]},
			Value:    liquidity,
			GasLimit: createGasLimit,
		},
		Correlation: &orchestrator.Correlation{
			Contract: b.cfg.FactoryAddress,
			Topic:    chain.TokenCreatedTopic,
			Timeout:  b.cfg.EventTimeout,
		},
	}, key)
	b.recordOutcome(ctx, userID, conversation.OpCreateToken, out)
	if err != nil {
		return nil, err
	}

	return []string{
		"Token created successfully!",
		fmt.Sprintf("Token address: %s", out.Event.TokenAddress.Hex()),
		fmt.Sprintf("Creator address: %s", out.Event.CreatorAddress.Hex()),
		fmt.Sprintf("Transaction hash: %s", out.TxHash.Hex()),
	}, nil
}

func (b *Bot) finalizeBuyToken(ctx context.Context, userID int64, fields map[string]string) ([]string, error) {
	token, err := parseAddress(fields["tokenAddress"], "token address")
	if err != nil {
		return nil, err
	}
	receiver, err := parseAddress(fields["receiverAddress"], "receiver address")
	if err != nil {
		return nil, err
	}
	minimumOut, err := chain.ParseUnits(fields["minimumAmountOut"], chain.NativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Please provide a valid minimum amount.")
	}
	amountIn, err := chain.ParseUnits(fields["amountIn"], chain.NativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Please provide a valid spend amount.")
	}
	key, err := b.signingKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	b.send(ctx, userID, fmt.Sprintf("---- Purchasing token %s ----", token.Hex()))

	out, err := b.submitter.Submit(ctx, orchestrator.Request{
		Operation: string(conversation.OpBuyToken),
		Call: chain.ContractCall{
			Contract: b.cfg.TradingHubAddress,
			ABI:      chain.TradingHubABI,
			Method:   "buy",
			Args:     []any{token, minimumOut, receiver},
			Value:    amountIn,
			GasLimit: buyGasLimit,
		},
	}, key)
	b.recordOutcome(ctx, userID, conversation.OpBuyToken, out)
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf("Token %s purchased successfully.", token.Hex()),
		fmt.Sprintf("Transaction hash: %s", out.TxHash.Hex()),
	}, nil
}

func (b *Bot) finalizeSellToken(ctx context.Context, userID int64, fields map[string]string) ([]string, error) {
	token, err := parseAddress(fields["tokenAddress"], "token address")
	if err != nil {
		return nil, err
	}
	receiver, err := parseAddress(fields["receiverAddress"], "receiver address")
	if err != nil {
		return nil, err
	}
	amount, err := chain.ParseUnits(fields["amount"], chain.NativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Please provide a valid token amount.")
	}
	value, err := chain.ParseUnits(fields["value"], chain.NativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Please provide a valid native value.")
	}
	key, err := b.signingKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	b.send(ctx, userID, fmt.Sprintf("---- Selling token %s ----", token.Hex()))

	out, err := b.submitter.Submit(ctx, orchestrator.Request{
		Operation: string(conversation.OpSellToken),
		Call: chain.ContractCall{
			Contract: b.cfg.TradingHubAddress,
			ABI:      chain.TradingHubABI,
			Method:   "sell",
			Args:     []any{token, receiver, amount},
			Value:    value,
			GasLimit: sellGasLimit,
		},
	}, key)
	b.recordOutcome(ctx, userID, conversation.OpSellToken, out)
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf("Token %s sold successfully.", token.Hex()),
		fmt.Sprintf("Transaction hash: %s", out.TxHash.Hex()),
	}, nil
}

// signingKey 取出用户钱包并解密出签名私钥。
func (b *Bot) signingKey(ctx context.Context, userID int64) (*ecdsa.PrivateKey, error) {
	wallet, err := b.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.vault.SigningKey(wallet)
}

// recordOutcome 写审计日志并发布交易流水。广播前就失败的提交没有
// 交易哈希，不产生流水。
func (b *Bot) recordOutcome(ctx context.Context, userID int64, op conversation.Operation, out orchestrator.Outcome) {
	if out.TxHash == (common.Hash{}) {
		return
	}
	record := outcome.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Operation: string(op),
		Status:    string(out.Status),
		TxHash:    out.TxHash.Hex(),
		CreatedAt: time.Now().Unix(),
	}
	if out.Event != nil {
		record.TokenAddress = out.Event.TokenAddress.Hex()
	}
	logger.Audit().Info("tx_submitted",
		slog.Int64("user_id", userID),
		slog.String("operation", record.Operation),
		slog.String("status", record.Status),
		slog.String("tx_hash", record.TxHash))
	b.publishOutcome(ctx, record)
}

func parseAddress(raw, label string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("Please provide a valid %s.", label))
	}
	return common.HexToAddress(raw), nil
}
