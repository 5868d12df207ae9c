package handlers

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/models"
)

type fakeLedger struct {
	records    []models.SettlementRecord
	total      *big.Int
	unresolved []models.PendingPayout
	err        error

	lastSource   string
	lastPage     int
	lastPageSize int
}

func (f *fakeLedger) ListSettlements(source string, page, pageSize int) ([]models.SettlementRecord, int64, error) {
	f.lastSource, f.lastPage, f.lastPageSize = source, page, pageSize
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.records, int64(len(f.records)), nil
}

func (f *fakeLedger) SumAmountIn() (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.total), nil
}

func (f *fakeLedger) ListUnresolvedPayouts() ([]models.PendingPayout, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.unresolved, nil
}

type fakeRegs struct{ n int }

func (f *fakeRegs) Len() int { return f.n }

func TestSettlementsHandler(t *testing.T) {
	ledger := &fakeLedger{
		records: []models.SettlementRecord{
			{ID: 2, SourceAddress: "0xabc", AmountIn: "100", AmountOut: "49", TxRef: "0xref2"},
			{ID: 1, SourceAddress: "0xabc", AmountIn: "50", AmountOut: "24", TxRef: "0xref1"},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/settlements?page=2&pageSize=10&source=0xabc", nil)
	rec := httptest.NewRecorder()
	SettlementsHandler(ledger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	if ledger.lastSource != "0xabc" || ledger.lastPage != 2 || ledger.lastPageSize != 10 {
		t.Errorf("ledger queried with (%s, %d, %d)", ledger.lastSource, ledger.lastPage, ledger.lastPageSize)
	}

	var resp struct {
		Data []models.SettlementRecord `json:"data"`
		Meta models.APIMeta            `json:"meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("data has %d records, want 2", len(resp.Data))
	}
	if resp.Data[0].TxRef != "0xref2" {
		t.Errorf("first record TxRef = %s, want 0xref2", resp.Data[0].TxRef)
	}
	if resp.Meta.Total != 2 || resp.Meta.Page != 2 || resp.Meta.PageSize != 10 {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestSettlementsHandler_DefaultsBadParams(t *testing.T) {
	ledger := &fakeLedger{}

	req := httptest.NewRequest(http.MethodGet, "/api/settlements?page=-3&pageSize=abc", nil)
	rec := httptest.NewRecorder()
	SettlementsHandler(ledger)(rec, req)

	if ledger.lastPage != 1 {
		t.Errorf("page = %d, want default 1", ledger.lastPage)
	}
	if ledger.lastPageSize != config.DefaultPageSize {
		t.Errorf("pageSize = %d, want default %d", ledger.lastPageSize, config.DefaultPageSize)
	}
}

func TestSettlementsHandler_LedgerError(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("db closed")}

	req := httptest.NewRequest(http.MethodGet, "/api/settlements", nil)
	rec := httptest.NewRecorder()
	SettlementsHandler(ledger)(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp models.APIError
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != config.ErrorDatabase {
		t.Errorf("error code = %s, want %s", resp.Error.Code, config.ErrorDatabase)
	}
}

func TestStatusHandler(t *testing.T) {
	ledger := &fakeLedger{
		total: big.NewInt(1500),
		unresolved: []models.PendingPayout{
			{ID: "p1", Status: models.PayoutStatusSubmitted},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	StatusHandler(ledger, &fakeRegs{n: 3})(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		ActiveRegistrations int    `json:"activeRegistrations"`
		TotalAmountIn       string `json:"totalAmountIn"`
		UnresolvedPayouts   int    `json:"unresolvedPayouts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ActiveRegistrations != 3 {
		t.Errorf("activeRegistrations = %d, want 3", resp.ActiveRegistrations)
	}
	if resp.TotalAmountIn != "1500" {
		t.Errorf("totalAmountIn = %s, want 1500", resp.TotalAmountIn)
	}
	if resp.UnresolvedPayouts != 1 {
		t.Errorf("unresolvedPayouts = %d, want 1", resp.UnresolvedPayouts)
	}
}

func TestStatusHandler_LedgerError(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("db closed")}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	StatusHandler(ledger, &fakeRegs{})(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{ChainID: 97, DBPath: "/tmp/test.db"}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(cfg, "1.2.3")(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		ChainID int64  `json:"chainId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %s, want 1.2.3", resp.Version)
	}
	if resp.ChainID != 97 {
		t.Errorf("chainId = %d, want 97", resp.ChainID)
	}
}
