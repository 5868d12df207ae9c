package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

// InsertPendingPayout journals a payout before it is submitted to the chain.
// If the process dies between submission and confirmation, the row survives
// with status "submitted" and is surfaced at the next startup.
func (d *DB) InsertPendingPayout(p models.PendingPayout) error {
	slog.Debug("journaling pending payout",
		"id", p.ID,
		"depositKey", p.DepositKey,
		"destination", p.Destination,
		"amountOut", p.AmountOut,
	)

	_, err := d.conn.Exec(
		`INSERT INTO pending_payouts (id, deposit_key, destination, amount_out, status)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.DepositKey, p.Destination, p.AmountOut, models.PayoutStatusSubmitted,
	)
	if err != nil {
		return fmt.Errorf("insert pending payout %s: %w", p.ID, err)
	}

	return nil
}

// MarkPayoutConfirmed records the on-chain transaction reference for a
// confirmed payout.
func (d *DB) MarkPayoutConfirmed(id, txRef string) error {
	return d.updatePayout(id, models.PayoutStatusConfirmed, txRef)
}

// MarkPayoutFailed records the failure reason for a payout that did not
// confirm.
func (d *DB) MarkPayoutFailed(id, reason string) error {
	return d.updatePayout(id, models.PayoutStatusFailed, reason)
}

func (d *DB) updatePayout(id, status, detail string) error {
	result, err := d.conn.Exec(
		`UPDATE pending_payouts SET status = ?, detail = ?, updated_at = datetime('now') WHERE id = ?`,
		status, detail, id,
	)
	if err != nil {
		return fmt.Errorf("update payout %s to %s: %w", id, status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for payout %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", config.ErrPayoutNotFound, id)
	}

	slog.Info("payout journal updated", "id", id, "status", status)
	return nil
}

// GetPendingPayout retrieves a journal entry by ID.
func (d *DB) GetPendingPayout(id string) (*models.PendingPayout, error) {
	var p models.PendingPayout
	err := d.conn.QueryRow(
		`SELECT id, deposit_key, destination, amount_out, status, detail, created_at, updated_at
		 FROM pending_payouts WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.DepositKey, &p.Destination, &p.AmountOut, &p.Status, &p.Detail, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", config.ErrPayoutNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending payout %s: %w", id, err)
	}
	return &p, nil
}

// ListUnresolvedPayouts returns payouts still in the submitted state, meaning
// they were in flight when the process last stopped. These need operator
// reconciliation against the chain before the funds can be considered settled.
func (d *DB) ListUnresolvedPayouts() ([]models.PendingPayout, error) {
	rows, err := d.conn.Query(
		`SELECT id, deposit_key, destination, amount_out, status, detail, created_at, updated_at
		 FROM pending_payouts WHERE status = ? ORDER BY created_at ASC`,
		models.PayoutStatusSubmitted,
	)
	if err != nil {
		return nil, fmt.Errorf("query unresolved payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.PendingPayout
	for rows.Next() {
		var p models.PendingPayout
		if err := rows.Scan(&p.ID, &p.DepositKey, &p.Destination, &p.AmountOut, &p.Status, &p.Detail, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending payout row: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending payout rows: %w", err)
	}

	return payouts, nil
}
