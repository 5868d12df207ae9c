package db

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

// InsertSettlement appends a settlement record and returns the auto-generated ID.
// Records are immutable once written. The UNIQUE(tx_hash, log_index) constraint
// makes this insert the idempotent commit point for a deposit: a replayed
// deposit fails with ErrDuplicateSettlement and no second row is created.
func (d *DB) InsertSettlement(rec models.SettlementRecord) (int64, error) {
	slog.Debug("inserting settlement",
		"sourceAddress", rec.SourceAddress,
		"amountIn", rec.AmountIn,
		"amountOut", rec.AmountOut,
		"txHash", rec.TxHash,
		"logIndex", rec.LogIndex,
	)

	result, err := d.conn.Exec(
		`INSERT INTO settlements (source_address, amount_in, amount_out, tx_ref, tx_hash, log_index)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SourceAddress,
		rec.AmountIn,
		rec.AmountOut,
		rec.TxRef,
		rec.TxHash,
		rec.LogIndex,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: %s/%d", config.ErrDuplicateSettlement, rec.TxHash, rec.LogIndex)
		}
		return 0, fmt.Errorf("insert settlement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	slog.Info("settlement recorded",
		"id", id,
		"sourceAddress", rec.SourceAddress,
		"amountIn", rec.AmountIn,
		"amountOut", rec.AmountOut,
		"txRef", rec.TxRef,
	)

	return id, nil
}

// HasSettlement reports whether a settlement already exists for the given
// deposit identifier.
func (d *DB) HasSettlement(txHash string, logIndex uint) (bool, error) {
	var count int
	err := d.conn.QueryRow(
		"SELECT COUNT(*) FROM settlements WHERE tx_hash = ? AND log_index = ?",
		txHash, logIndex,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check settlement %s/%d: %w", txHash, logIndex, err)
	}
	return count > 0, nil
}

// CountByAddress returns the number of settlements recorded for a source
// address. Matching is case-insensitive (the column collates NOCASE).
func (d *DB) CountByAddress(address string) (int, error) {
	var count int
	err := d.conn.QueryRow(
		"SELECT COUNT(*) FROM settlements WHERE source_address = ?",
		address,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count settlements for %s: %w", address, err)
	}
	return count, nil
}

// SumAmountIn returns the total deposited amount across all settlements, in
// base units. Amounts are stored as integer strings, so the sum is accumulated
// in Go to avoid SQLite's float coercion on large values.
func (d *DB) SumAmountIn() (*big.Int, error) {
	rows, err := d.conn.Query("SELECT amount_in FROM settlements")
	if err != nil {
		return nil, fmt.Errorf("query settlement amounts: %w", err)
	}
	defer rows.Close()

	total := new(big.Int)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan settlement amount: %w", err)
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("settlement amount %q is not an integer", s)
		}
		total.Add(total, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement amounts: %w", err)
	}

	return total, nil
}

// ListSettlements returns paginated settlements, newest first, optionally
// filtered by source address.
func (d *DB) ListSettlements(sourceAddress string, page, pageSize int) ([]models.SettlementRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > config.MaxPageSize {
		pageSize = config.DefaultPageSize
	}
	offset := (page - 1) * pageSize

	where := "1=1"
	var args []interface{}
	if sourceAddress != "" {
		where = "source_address = ?"
		args = append(args, sourceAddress)
	}

	var total int64
	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM settlements WHERE "+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count settlements: %w", err)
	}

	queryArgs := append(args, pageSize, offset)
	rows, err := d.conn.Query(
		`SELECT id, source_address, amount_in, amount_out, tx_ref, tx_hash, log_index, created_at
		 FROM settlements WHERE `+where+` ORDER BY id DESC LIMIT ? OFFSET ?`,
		queryArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var recs []models.SettlementRecord
	for rows.Next() {
		var rec models.SettlementRecord
		if err := rows.Scan(
			&rec.ID, &rec.SourceAddress, &rec.AmountIn, &rec.AmountOut,
			&rec.TxRef, &rec.TxHash, &rec.LogIndex, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan settlement row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate settlement rows: %w", err)
	}

	return recs, total, nil
}
