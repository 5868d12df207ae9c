// Package registry holds the in-memory mapping from a chat session to its
// pending payout address. Registrations are short-lived and not persisted:
// they exist between address submission and the settlement of the next
// matching deposit.
package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
	"github.com/bcxlabs/buybackd/internal/validate"
)

// SettlementCounter exposes the ledger's per-address settlement count, used to
// refuse registrations from identities that have exhausted their attempt cap.
type SettlementCounter interface {
	CountByAddress(address string) (int, error)
}

// Store is a mutex-guarded registration map keyed by session ID. One active
// registration per session; re-registering overwrites.
type Store struct {
	mu          sync.RWMutex
	sessions    map[int64]models.Registration
	ledger      SettlementCounter
	maxAttempts int
}

// New creates a registration store backed by the given settlement counter.
func New(ledger SettlementCounter, maxAttempts int) *Store {
	slog.Info("registration store initialized", "maxAttempts", maxAttempts)
	return &Store{
		sessions:    make(map[int64]models.Registration),
		ledger:      ledger,
		maxAttempts: maxAttempts,
	}
}

// Register records a payout address for a session. Fails with
// config.ErrInvalidAddress if the address is malformed, or with
// config.ErrAttemptLimitExceeded if the ledger already shows the configured
// maximum of settlements for that address.
func (s *Store) Register(sessionID int64, address string) error {
	if err := validate.PayoutAddress(address); err != nil {
		return err
	}

	count, err := s.ledger.CountByAddress(address)
	if err != nil {
		return fmt.Errorf("check settlement count for %s: %w", address, err)
	}
	if count >= s.maxAttempts {
		return fmt.Errorf("%w: %d settlements recorded for %s, limit is %d",
			config.ErrAttemptLimitExceeded, count, address, s.maxAttempts)
	}

	s.mu.Lock()
	_, replaced := s.sessions[sessionID]
	s.sessions[sessionID] = models.Registration{
		SessionID:     sessionID,
		PayoutAddress: address,
		RegisteredAt:  time.Now().UTC(),
	}
	s.mu.Unlock()

	slog.Info("registration recorded",
		"sessionID", sessionID,
		"payoutAddress", address,
		"replaced", replaced,
	)

	return nil
}

// LookupBySourceAddress finds the registration whose payout address matches
// the given deposit source address, case-insensitively. Returns
// config.ErrRegistrationNotFound when no active registration matches.
func (s *Store) LookupBySourceAddress(address string) (models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.sessions {
		if strings.EqualFold(reg.PayoutAddress, address) {
			return reg, nil
		}
	}

	return models.Registration{}, fmt.Errorf("%w: %s", config.ErrRegistrationNotFound, address)
}

// Remove deletes the registration for a session, if any.
func (s *Store) Remove(sessionID int64) {
	s.mu.Lock()
	_, existed := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if existed {
		slog.Debug("registration removed", "sessionID", sessionID)
	}
}

// Len returns the number of active registrations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
