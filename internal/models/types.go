package models

import (
	"fmt"
	"math/big"
	"time"
)

// Registration is a session's claim that a given payout address should receive
// the proceeds of its next deposit. One active registration per session; a
// resubmission overwrites the previous one.
type Registration struct {
	SessionID     int64     `json:"sessionId"`
	PayoutAddress string    `json:"payoutAddress"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

// DepositEvent is a normalized inbound token transfer observed on-chain.
// Transient: consumed once by the settlement engine, never persisted directly.
type DepositEvent struct {
	SourceAddress      string
	DestinationAddress string
	RawAmount          *big.Int
	TxHash             string
	LogIndex           uint
	BlockNumber        uint64
}

// Key returns the deposit's replay-detection identifier.
func (d DepositEvent) Key() string {
	return fmt.Sprintf("%s:%d", d.TxHash, d.LogIndex)
}

// SettlementRecord is an append-only ledger entry for a completed settlement.
// Amounts are base-unit integer strings.
type SettlementRecord struct {
	ID            int64  `json:"id"`
	SourceAddress string `json:"sourceAddress"`
	AmountIn      string `json:"amountIn"`
	AmountOut     string `json:"amountOut"`
	TxRef         string `json:"txRef"`
	TxHash        string `json:"txHash"`
	LogIndex      uint   `json:"logIndex"`
	CreatedAt     string `json:"createdAt"`
}

// Outcome is the terminal state of a processed deposit.
type Outcome string

const (
	OutcomeSettled                     Outcome = "SETTLED"
	OutcomeDuplicate                   Outcome = "DUPLICATE"
	OutcomeRejectedNoRegistration      Outcome = "REJECTED_NO_REGISTRATION"
	OutcomeRejectedTooSmall            Outcome = "REJECTED_TOO_SMALL"
	OutcomeRejectedTooLarge            Outcome = "REJECTED_TOO_LARGE"
	OutcomeRejectedLimitReached        Outcome = "REJECTED_LIMIT_REACHED"
	OutcomeRejectedInsufficientReserve Outcome = "REJECTED_INSUFFICIENT_RESERVE"
)

// Terminal reports whether the outcome ends the deposit's lifecycle. All
// outcomes are terminal; payout execution failures are surfaced as errors, not
// outcomes, so the deposit can be retried.
func (o Outcome) Terminal() bool { return o != "" }

// PendingPayout status values.
const (
	PayoutStatusSubmitted = "submitted"
	PayoutStatusConfirmed = "confirmed"
	PayoutStatusFailed    = "failed"
)

// PendingPayout is a durable journal entry written before a payout is
// submitted, so a payout in flight across a crash can be reconciled on restart.
type PendingPayout struct {
	ID          string `json:"id"`
	DepositKey  string `json:"depositKey"`
	Destination string `json:"destination"`
	AmountOut   string `json:"amountOut"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Data interface{} `json:"data,omitempty"`
	Meta *APIMeta    `json:"meta,omitempty"`
}

// APIMeta contains pagination metadata.
type APIMeta struct {
	Page     int   `json:"page,omitempty"`
	PageSize int   `json:"pageSize,omitempty"`
	Total    int64 `json:"total,omitempty"`
}

// APIError is the standard error response.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error code and message.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
