package config

import "time"

// Token arithmetic
const (
	TokenDecimals = 18
)

// BEP-20 method selectors
const (
	BEP20TransferMethodID  = "a9059cbb" // transfer(address,uint256)
	BEP20BalanceOfMethodID = "70a08231" // balanceOf(address)
)

// Chain IDs
const (
	BSCMainnetChainID = 56
	BSCTestnetChainID = 97
)

// Gas
const (
	BSCGasLimitBEP20             = 65_000
	BSCGasPriceBufferNumerator   = 12 // 20% buffer
	BSCGasPriceBufferDenominator = 10
)

// Watcher
const (
	WatcherChannelBuffer  = 64
	WatcherBackoffInitial = 500 * time.Millisecond
	WatcherBackoffMax     = 30 * time.Second
	WatcherSeenCacheSize  = 4096
)

// Settlement retry policy for transient failures (RPC unavailable, broadcast
// refused). Post-broadcast failures are never retried.
const (
	SettlementMaxAttempts  = 3
	SettlementRetryBackoff = 5 * time.Second
)

// Payout
const (
	ReceiptPollInterval = 3 * time.Second
	PayoutRPCRateLimit  = 5 // requests per second
)

// Telegram
const (
	TelegramSendRateLimit = 20 // messages per second, bot API global cap is 30
	TelegramPollTimeout   = 30 // seconds, long-poll
)

// Server
const (
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Logging
const (
	LogFilePattern = "buybackd-%s.log" // %s = YYYY-MM-DD
	LogMaxAgeDays  = 30
)

// Database
const (
	DBBusyTimeout = 5000 // milliseconds

	// API pagination
	DefaultPageSize = 50
	MaxPageSize     = 500
)
