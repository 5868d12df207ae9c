// Package watcher subscribes to token Transfer logs addressed to the
// custodial wallet and emits normalized deposit events on a channel. It never
// touches payment execution.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

// transferTopic is the keccak hash of the ERC-20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EthSubscriber is the minimal ethclient surface the watcher needs. Allows
// driving the watcher with synthetic logs in tests.
type EthSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Watcher observes Transfer logs for one token contract filtered to deposits
// into the custodial address.
type Watcher struct {
	client    EthSubscriber
	token     common.Address
	custodial common.Address
	events    chan models.DepositEvent

	// seen tracks recently delivered (txHash, logIndex) pairs so transport
	// redelivery after a resubscribe does not emit the same deposit twice.
	// The ledger's uniqueness constraint is the durable second line.
	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

// New creates a watcher for deposits of token into custodial.
func New(client EthSubscriber, token, custodial common.Address) *Watcher {
	slog.Info("chain watcher initialized",
		"token", token.Hex(),
		"custodial", custodial.Hex(),
	)
	return &Watcher{
		client:    client,
		token:     token,
		custodial: custodial,
		events:    make(chan models.DepositEvent, config.WatcherChannelBuffer),
		seen:      make(map[string]struct{}),
	}
}

// Events returns the channel on which deposit events are delivered. Closed
// when Run returns.
func (w *Watcher) Events() <-chan models.DepositEvent {
	return w.events
}

// Run subscribes and delivers deposits until ctx is cancelled. Transient
// subscription drops are retried with exponential backoff rather than
// terminating the process.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.token},
		Topics: [][]common.Hash{
			{transferTopic},
			nil,
			{common.BytesToHash(common.LeftPadBytes(w.custodial.Bytes(), 32))},
		},
	}

	backoff := config.WatcherBackoffInitial

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		logs := make(chan types.Log, config.WatcherChannelBuffer)
		sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			slog.Warn("transfer subscription failed, retrying",
				"error", err,
				"backoff", backoff.String(),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		slog.Info("transfer subscription established",
			"token", w.token.Hex(),
			"custodial", w.custodial.Hex(),
		)
		backoff = config.WatcherBackoffInitial

		if err := w.consume(ctx, sub, logs); err != nil {
			slog.Warn("transfer subscription dropped, resubscribing",
				"error", err,
				"backoff", backoff.String(),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		// consume returns nil only on context cancellation.
		return nil
	}
}

// consume pumps logs from an active subscription until it errors or ctx ends.
func (w *Watcher) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log) error {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)

		case vLog := <-logs:
			dep, err := DecodeTransfer(vLog)
			if err != nil {
				slog.Debug("skipping undecodable log",
					"txHash", vLog.TxHash.Hex(),
					"logIndex", vLog.Index,
					"error", err,
				)
				continue
			}

			if vLog.Removed {
				slog.Warn("reorged transfer log ignored",
					"txHash", dep.TxHash,
					"logIndex", dep.LogIndex,
				)
				continue
			}

			if !w.markSeen(dep.Key()) {
				slog.Debug("duplicate transfer log ignored",
					"txHash", dep.TxHash,
					"logIndex", dep.LogIndex,
				)
				continue
			}

			slog.Info("deposit detected",
				"from", dep.SourceAddress,
				"amount", dep.RawAmount.String(),
				"txHash", dep.TxHash,
				"logIndex", dep.LogIndex,
				"block", dep.BlockNumber,
			)

			select {
			case w.events <- dep:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// DecodeTransfer converts a raw Transfer log into a DepositEvent.
func DecodeTransfer(vLog types.Log) (models.DepositEvent, error) {
	if len(vLog.Topics) != 3 {
		return models.DepositEvent{}, fmt.Errorf("expected 3 topics, got %d", len(vLog.Topics))
	}
	if vLog.Topics[0] != transferTopic {
		return models.DepositEvent{}, fmt.Errorf("not a Transfer log: topic %s", vLog.Topics[0].Hex())
	}
	if len(vLog.Data) != 32 {
		return models.DepositEvent{}, fmt.Errorf("expected 32 bytes of data, got %d", len(vLog.Data))
	}

	from := common.BytesToAddress(vLog.Topics[1].Bytes())
	to := common.BytesToAddress(vLog.Topics[2].Bytes())
	value := new(big.Int).SetBytes(vLog.Data)

	return models.DepositEvent{
		SourceAddress:      from.Hex(),
		DestinationAddress: to.Hex(),
		RawAmount:          value,
		TxHash:             vLog.TxHash.Hex(),
		LogIndex:           vLog.Index,
		BlockNumber:        vLog.BlockNumber,
	}, nil
}

// markSeen records a deposit key, returning false if it was already present.
// The cache is bounded; oldest entries are evicted first.
func (w *Watcher) markSeen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return false
	}

	w.seen[key] = struct{}{}
	w.seenOrder = append(w.seenOrder, key)

	if len(w.seenOrder) > config.WatcherSeenCacheSize {
		oldest := w.seenOrder[0]
		w.seenOrder = w.seenOrder[1:]
		delete(w.seen, oldest)
	}

	return true
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > config.WatcherBackoffMax {
		d = config.WatcherBackoffMax
	}
	return d
}
