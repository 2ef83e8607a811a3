package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/capital"
	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

// LedgerHandler exposes stock history and vendor capital.
type LedgerHandler struct {
	Inventory *inventory.Ledger
	Capital   *capital.Ledger
	Log       *zap.Logger
}

type stockReq struct {
	Change   string `json:"change"`
	Quantity int    `json:"quantity"`
	NewStock int    `json:"new_stock"`
	Notes    string `json:"notes"`
}

type capitalReq struct {
	Type      string              `json:"type"`
	Amount    decimal.NullDecimal `json:"amount"`
	ProductID string              `json:"product_id"`
	Quantity  int                 `json:"quantity"`
	UnitCost  decimal.NullDecimal `json:"unit_cost"`
	Notes     string              `json:"notes"`
}

type productResp struct {
	ID       string `json:"id"`
	VendorID string `json:"vendor_id"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	Price    string `json:"price"`
	Source   string `json:"product_source"`
}

type logResp struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id,omitempty"`
	ChangeType  string    `json:"change_type"`
	Quantity    int       `json:"quantity"`
	StockBefore int       `json:"stock_before"`
	StockAfter  int       `json:"stock_after"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type capitalTxResp struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	OrderID       string    `json:"order_id,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type balanceResp struct {
	VendorID   string          `json:"vendor_id"`
	Balance    string          `json:"balance"`
	ChainOK    bool            `json:"chain_ok"`
	ChainError string          `json:"chain_error,omitempty"`
	Entries    []capitalTxResp `json:"entries"`
}

func (h *LedgerHandler) Register(r chi.Router) {
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}/history", h.history)
	r.Post("/products/{id}/stock", h.moveStock)
	r.Get("/vendors/{id}/balance", h.balance)
	r.Post("/vendors/{id}/capital", h.capital)
}

func (h *LedgerHandler) log() *zap.Logger { return logx.OrNop(h.Log) }

func (h *LedgerHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryInt(r, "threshold", 0)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Inventory.LowStockProducts(ctx, threshold)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		src := orders.SourceOwned
		if p.Source != nil {
			src = p.Source.Kind()
		}
		out = append(out, productResp{ID: p.ID, VendorID: p.VendorID, Name: p.Name, Stock: p.Stock, Price: p.Price.StringFixed(2), Source: src})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *LedgerHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	logs, err := h.Inventory.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]logResp, 0, len(logs))
	for _, l := range logs {
		out = append(out, toLogResp(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *LedgerHandler) moveStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	productID := chi.URLParam(r, "id")
	var (
		entry orders.InventoryLog
		err   error
	)
	switch orders.ChangeType(req.Change) {
	case orders.ChangePurchase:
		entry, err = h.Inventory.AddStock(ctx, productID, req.Quantity, req.Notes)
	case orders.ChangeAdjustment:
		entry, err = h.Inventory.AdjustStock(ctx, productID, req.NewStock, req.Notes)
	default:
		err = orders.InvalidInput("change must be PURCHASE or ADJUSTMENT, got %q", req.Change)
	}
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusCreated, toLogResp(entry))
}

func (h *LedgerHandler) balance(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	bal, err := h.Capital.Balance(ctx, vendorID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	txs, err := h.Capital.Transactions(ctx, vendorID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}

	resp := balanceResp{VendorID: vendorID, Balance: bal.StringFixed(2), ChainOK: true, Entries: make([]capitalTxResp, 0, len(txs))}
	if err := h.Capital.VerifyChain(ctx, vendorID); err != nil {
		if !errors.Is(err, capital.ErrChainBroken) {
			writeError(w, h.log(), err)
			return
		}
		h.log().Error("capital chain broken", zap.String("vendor_id", vendorID), zap.Error(err))
		resp.ChainOK = false
		resp.ChainError = err.Error()
	}
	for _, t := range txs {
		resp.Entries = append(resp.Entries, toCapitalTxResp(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) capital(w http.ResponseWriter, r *http.Request) {
	var req capitalReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	vendorID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		entry orders.CapitalTransaction
		err   error
	)
	switch orders.CapitalTxType(req.Type) {
	case orders.CapitalDeposit:
		entry, err = h.Capital.Deposit(ctx, vendorID, req.Amount.Decimal, req.Notes)
	case orders.CapitalWithdrawal:
		entry, err = h.Capital.Withdraw(ctx, vendorID, req.Amount.Decimal, req.Notes)
	case orders.CapitalPurchase:
		if !req.UnitCost.Valid {
			err = orders.InvalidInput("unit_cost is required for PURCHASE")
			break
		}
		entry, err = h.Capital.RecordPurchase(ctx, vendorID, req.ProductID, req.Quantity, req.UnitCost.Decimal)
	default:
		err = orders.InvalidInput("type must be DEPOSIT, WITHDRAWAL or PURCHASE, got %q", req.Type)
	}
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusCreated, toCapitalTxResp(entry))
}

func toLogResp(l orders.InventoryLog) logResp {
	return logResp{
		ID:          l.ID,
		OrderID:     l.OrderID,
		ChangeType:  string(l.ChangeType),
		Quantity:    l.Quantity,
		StockBefore: l.StockBefore,
		StockAfter:  l.StockAfter,
		Notes:       l.Notes,
		CreatedAt:   l.CreatedAt,
	}
}

func toCapitalTxResp(t orders.CapitalTransaction) capitalTxResp {
	return capitalTxResp{
		ID:            t.ID,
		Seq:           t.Seq,
		Type:          string(t.Type),
		Amount:        t.Amount.StringFixed(2),
		BalanceBefore: t.BalanceBefore.StringFixed(2),
		BalanceAfter:  t.BalanceAfter.StringFixed(2),
		OrderID:       t.OrderID,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}
