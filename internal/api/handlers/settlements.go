package handlers

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

// SettlementLedger is the read-only ledger surface exposed over HTTP.
type SettlementLedger interface {
	ListSettlements(sourceAddress string, page, pageSize int) ([]models.SettlementRecord, int64, error)
	SumAmountIn() (*big.Int, error)
	ListUnresolvedPayouts() ([]models.PendingPayout, error)
}

// RegistrationCount reports the number of active registrations.
type RegistrationCount interface {
	Len() int
}

// SettlementsHandler returns a paginated ledger view.
// Query params: page, pageSize, source.
func SettlementsHandler(ledger SettlementLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := intQuery(r, "page", 1)
		pageSize := intQuery(r, "pageSize", config.DefaultPageSize)
		source := r.URL.Query().Get("source")

		recs, total, err := ledger.ListSettlements(source, page, pageSize)
		if err != nil {
			slog.Error("failed to list settlements", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to list settlements")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.APIResponse{
			Data: recs,
			Meta: &models.APIMeta{Page: page, PageSize: pageSize, Total: total},
		})
	}
}

// StatusHandler reports operational state: active registrations, total bought,
// and the number of payouts awaiting reconciliation.
func StatusHandler(ledger SettlementLedger, regs RegistrationCount) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := ledger.SumAmountIn()
		if err != nil {
			slog.Error("failed to sum settlements", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to read totals")
			return
		}

		unresolved, err := ledger.ListUnresolvedPayouts()
		if err != nil {
			slog.Error("failed to list unresolved payouts", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to read payout journal")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"activeRegistrations": regs.Len(),
			"totalAmountIn":       total.String(),
			"unresolvedPayouts":   len(unresolved),
		})
	}
}

func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIError{
		Error: models.APIErrorDetail{Code: code, Message: message},
	})
}
