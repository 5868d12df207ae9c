// Package payout executes payout-token transfers from the custodial wallet.
package payout

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/bcxlabs/buybackd/internal/config"
)

// EthClientWrapper defines the minimal ethclient interface needed for payouts.
// This allows mocking in tests.
type EthClientWrapper interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// bep20TransferSelector is the 4-byte function selector for transfer(address,uint256).
var bep20TransferSelector = func() []byte {
	b, _ := hex.DecodeString(config.BEP20TransferMethodID)
	return b
}()

// bep20BalanceOfSelector is the 4-byte function selector for balanceOf(address).
var bep20BalanceOfSelector = func() []byte {
	b, _ := hex.DecodeString(config.BEP20BalanceOfMethodID)
	return b
}()

// EncodeBEP20Transfer encodes a BEP-20 transfer(address,uint256) call.
// Returns 68 bytes: 4-byte selector + 32-byte padded address + 32-byte padded amount.
func EncodeBEP20Transfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, bep20TransferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// BufferedGasPrice applies the gas price buffer (20% increase) to a suggested gas price.
func BufferedGasPrice(suggested *big.Int) *big.Int {
	buffered := new(big.Int).Mul(suggested, big.NewInt(int64(config.BSCGasPriceBufferNumerator)))
	buffered.Div(buffered, big.NewInt(int64(config.BSCGasPriceBufferDenominator)))
	return buffered
}

// Executor submits BEP-20 payouts from the custodial wallet and answers
// reserve queries. Submissions are serialized so nonces stay monotonic.
type Executor struct {
	client      EthClientWrapper
	signer      *Signer
	payoutToken common.Address
	chainID     *big.Int
	limiter     *rate.Limiter

	nonceMu sync.Mutex
}

// NewExecutor creates the payout executor.
func NewExecutor(client EthClientWrapper, signer *Signer, payoutToken common.Address, chainID *big.Int) *Executor {
	slog.Info("payout executor initialized",
		"payoutToken", payoutToken.Hex(),
		"signer", signer.Address().Hex(),
		"chainID", chainID,
	)
	return &Executor{
		client:      client,
		signer:      signer,
		payoutToken: payoutToken,
		chainID:     chainID,
		limiter:     rate.NewLimiter(rate.Limit(config.PayoutRPCRateLimit), 1),
	}
}

// Transfer submits a payout-token transfer to destination and waits for the
// receipt. Failures before broadcast come back as transient errors and are
// safe to retry. After broadcast the transfer must not be re-sent: an unmined
// or unqueryable receipt comes back wrapping config.ErrReceiptTimeout, and an
// on-chain revert comes back as config.ErrTxReverted, neither transient.
func (ex *Executor) Transfer(ctx context.Context, destination string, amount *big.Int) (string, error) {
	dest := common.HexToAddress(destination)

	if err := ex.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	ex.nonceMu.Lock()
	signed, err := ex.buildAndSign(ctx, dest, amount)
	if err == nil {
		err = ex.client.SendTransaction(ctx, signed)
		if err != nil {
			err = config.NewTransientError(fmt.Errorf("%w: %s", config.ErrTransferFailed, err))
		}
	}
	ex.nonceMu.Unlock()
	if err != nil {
		return "", err
	}

	txHash := signed.Hash()
	slog.Info("payout submitted",
		"txHash", txHash.Hex(),
		"destination", dest.Hex(),
		"amount", amount.String(),
	)

	receipt, err := ex.waitForReceipt(ctx, txHash)
	if err != nil {
		return "", err
	}

	slog.Info("payout confirmed",
		"txHash", txHash.Hex(),
		"blockNumber", receipt.BlockNumber,
		"gasUsed", receipt.GasUsed,
	)

	return txHash.Hex(), nil
}

func (ex *Executor) buildAndSign(ctx context.Context, dest common.Address, amount *big.Int) (*types.Transaction, error) {
	nonce, err := ex.client.PendingNonceAt(ctx, ex.signer.Address())
	if err != nil {
		return nil, config.NewTransientError(fmt.Errorf("pending nonce: %w", err))
	}

	suggested, err := ex.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, config.NewTransientError(fmt.Errorf("suggest gas price: %w", err))
	}
	gasPrice := BufferedGasPrice(suggested)

	contractAddr := ex.payoutToken
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contractAddr,
		Value:    big.NewInt(0),
		Gas:      config.BSCGasLimitBEP20,
		GasPrice: gasPrice,
		Data:     EncodeBEP20Transfer(dest, amount),
	})

	signed, err := ex.signer.SignTx(tx, ex.chainID)
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// waitForReceipt polls for a transaction receipt until mined, reverted, or the
// context deadline passes.
func (ex *Executor) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	slog.Debug("waiting for receipt", "txHash", txHash.Hex())

	for {
		receipt, err := ex.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: tx %s reverted in block %d",
					config.ErrTxReverted, txHash.Hex(), receipt.BlockNumber.Uint64())
			}
			return receipt, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			// The transaction is already broadcast; confirmation state is
			// unknown, so this must not be classified as retriable.
			return nil, fmt.Errorf("%w: query receipt for %s failed: %v",
				config.ErrReceiptTimeout, txHash.Hex(), err)
		}

		// Not mined yet, wait and retry.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx %s not mined within timeout",
				config.ErrReceiptTimeout, txHash.Hex())
		case <-time.After(config.ReceiptPollInterval):
			slog.Debug("receipt not ready, polling again", "txHash", txHash.Hex())
		}
	}
}

// BalanceOf fetches the on-chain payout-token balance for an address.
func (ex *Executor) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	owner := common.HexToAddress(address)

	data := make([]byte, 0, 36)
	data = append(data, bep20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	contractAddr := ex.payoutToken
	result, err := ex.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call for %s on contract %s: %w", owner.Hex(), contractAddr.Hex(), err)
	}

	if len(result) < 32 {
		return nil, fmt.Errorf("balanceOf returned %d bytes, expected 32", len(result))
	}

	return new(big.Int).SetBytes(result[:32]), nil
}
