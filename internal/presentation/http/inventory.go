package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

type recordResponse struct {
	RestaurantID      string          `json:"restaurant_id"`
	MenuItemID        string          `json:"menu_item_id"`
	Unit              string          `json:"unit,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toRecordResponse(rec *dominv.Record) *recordResponse {
	if rec == nil {
		return nil
	}
	return &recordResponse{
		RestaurantID:      rec.RestaurantID,
		MenuItemID:        rec.MenuItemID,
		Unit:              rec.Unit,
		Quantity:          rec.Quantity,
		LowStockThreshold: rec.LowStockThreshold,
		Version:           rec.Version,
		UpdatedAt:         rec.UpdatedAt,
	}
}

type entryResponse struct {
	Seq       int64             `json:"seq"`
	Previous  decimal.Decimal   `json:"previous"`
	Delta     decimal.Decimal   `json:"delta"`
	Resulting decimal.Decimal   `json:"resulting"`
	Kind      dominv.ChangeKind `json:"kind"`
	Actor     string            `json:"actor"`
	Reason    string            `json:"reason,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	LineID    string            `json:"line_id,omitempty"`
	Negative  bool              `json:"negative,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func toEntryResponse(e *dominv.Entry) *entryResponse {
	if e == nil {
		return nil
	}
	return &entryResponse{
		Seq:       e.Seq,
		Previous:  e.Previous,
		Delta:     e.Delta,
		Resulting: e.Resulting,
		Kind:      e.Kind,
		Actor:     e.Actor,
		Reason:    e.Reason,
		OrderID:   e.OrderID,
		LineID:    e.LineID,
		Negative:  e.Negative,
		CreatedAt: e.CreatedAt,
	}
}

type changeResponse struct {
	Tracked       bool            `json:"tracked"`
	Record        *recordResponse `json:"record,omitempty"`
	Entry         *entryResponse  `json:"entry,omitempty"`
	NegativeStock bool            `json:"negative_stock"`
	LowStock      bool            `json:"low_stock"`
}

func toChangeResponse(res *appinventory.ChangeResult) changeResponse {
	return changeResponse{
		Tracked:       res.Tracked,
		Record:        toRecordResponse(res.Record),
		Entry:         toEntryResponse(res.Entry),
		NegativeStock: res.NegativeStock,
		LowStock:      res.LowStock,
	}
}

type trackRequest struct {
	RestaurantID      string          `json:"restaurant_id"`
	MenuItemID        string          `json:"menu_item_id"`
	Unit              string          `json:"unit"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	InitialQuantity   decimal.Decimal `json:"initial_quantity"`
}

func (h *Handler) handleTrackItem(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	rec, err := h.inventory.Track(r.Context(), appinventory.TrackInput{
		RestaurantID:      req.RestaurantID,
		MenuItemID:        req.MenuItemID,
		Unit:              req.Unit,
		LowStockThreshold: req.LowStockThreshold,
		InitialQuantity:   req.InitialQuantity,
		Actor:             actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

type deductRequest struct {
	RestaurantID string          `json:"restaurant_id"`
	MenuItemID   string          `json:"menu_item_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reason       string          `json:"reason"`
}

func (h *Handler) handleDeductStock(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	res, err := h.inventory.Deduct(r.Context(), appinventory.DeductInput{
		RestaurantID: req.RestaurantID,
		MenuItemID:   req.MenuItemID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Actor:        actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeResponse(res))
}

type adjustRequest struct {
	RestaurantID string            `json:"restaurant_id"`
	MenuItemID   string            `json:"menu_item_id"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Kind         dominv.ChangeKind `json:"kind"`
	Reason       string            `json:"reason"`
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	if req.Kind == "" {
		req.Kind = dominv.KindManualAdjustment
	}
	res, err := h.inventory.Adjust(r.Context(), appinventory.AdjustInput{
		RestaurantID: req.RestaurantID,
		MenuItemID:   req.MenuItemID,
		Quantity:     req.Quantity,
		Kind:         req.Kind,
		Reason:       req.Reason,
		Actor:        actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeResponse(res))
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	rec, err := h.inventory.Get(r.Context(), r.PathValue("restaurant"), r.PathValue("item"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

type historyResponse struct {
	Entries    []*entryResponse `json:"entries"`
	NextOffset int              `json:"next_offset"`
}

func (h *Handler) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	page, err := h.inventory.History(r.Context(), appinventory.HistoryInput{
		RestaurantID: r.PathValue("restaurant"),
		MenuItemID:   r.PathValue("item"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	resp := historyResponse{Entries: make([]*entryResponse, 0, len(page.Entries)), NextOffset: page.NextOffset}
	for i := range page.Entries {
		resp.Entries = append(resp.Entries, toEntryResponse(&page.Entries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	recs, err := h.inventory.LowStock(r.Context())
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]*recordResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toRecordResponse(&recs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Validation("query %s: not an integer", key)
	}
	return n, nil
}
