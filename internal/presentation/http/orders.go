package httppresentation

import (
	"net/http"
	"time"

	apporder "github.com/Zhima-Mochi/restaurant-pos/internal/application/order"
	apppayment "github.com/Zhima-Mochi/restaurant-pos/internal/application/payment"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type placeOrderLine struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type placeOrderRequest struct {
	RestaurantID string           `json:"restaurant_id"`
	TableID      string           `json:"table_id"`
	CustomerID   string           `json:"customer_id"`
	CouponCode   string           `json:"coupon_code"`
	Lines        []placeOrderLine `json:"lines"`
}

type lineResponse struct {
	ID              string          `json:"id"`
	MenuItemID      string          `json:"menu_item_id"`
	Name            string          `json:"name"`
	CategoryID      string          `json:"category_id,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Amount          decimal.Decimal `json:"amount"`
	StockedQuantity int             `json:"stocked_quantity"`
}

type appliedCouponResponse struct {
	Code         string         `json:"code"`
	RedemptionID string         `json:"redemption_id"`
	Discount     domcoupon.Spec `json:"discount"`
}

type orderResponse struct {
	ID             string                 `json:"id"`
	Number         int64                  `json:"number"`
	RestaurantID   string                 `json:"restaurant_id"`
	RestaurantName string                 `json:"restaurant_name"`
	TableID        string                 `json:"table_id"`
	CustomerID     string                 `json:"customer_id,omitempty"`
	Status         domorder.Status        `json:"status"`
	PaymentStatus  domorder.PaymentStatus `json:"payment_status"`
	Lines          []lineResponse         `json:"lines"`
	TotalCost      decimal.Decimal        `json:"total_cost"`
	Discount       decimal.Decimal        `json:"discount"`
	Payable        decimal.Decimal        `json:"payable"`
	Coupon         *appliedCouponResponse `json:"coupon,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Number:         o.Number,
		RestaurantID:   o.RestaurantID,
		RestaurantName: o.RestaurantName,
		TableID:        o.TableID,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		Lines:          make([]lineResponse, 0, len(o.Lines)),
		TotalCost:      o.TotalCost,
		Discount:       o.Discount,
		Payable:        o.Payable(),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:              l.ID,
			MenuItemID:      l.MenuItemID,
			Name:            l.Name,
			CategoryID:      l.CategoryID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			Amount:          l.Amount(),
			StockedQuantity: l.StockedQuantity,
		})
	}
	if o.Coupon != nil {
		resp.Coupon = &appliedCouponResponse{
			Code:         o.Coupon.Code,
			RedemptionID: o.Coupon.RedemptionID,
			Discount:     domcoupon.SpecOf(o.Coupon.Discount),
		}
	}
	return resp
}

type placeOrderResponse struct {
	Order   orderResponse `json:"order"`
	Created bool          `json:"created"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}

	in := apporder.PlaceInput{
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		CustomerID:   req.CustomerID,
		CouponCode:   req.CouponCode,
		Actor:        actorFrom(r),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, apporder.PlaceLine{MenuItemID: l.MenuItemID, Quantity: l.Quantity})
	}

	res, err := h.orders.OpenOrAppend(r.Context(), in)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, placeOrderResponse{Order: toOrderResponse(res.Order), Created: res.Created})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type statusChangeResponse struct {
	From      domorder.Status `json:"from,omitempty"`
	To        domorder.Status `json:"to"`
	Actor     string          `json:"actor"`
	Reason    string          `json:"reason,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
}

func (h *Handler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.orders.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]statusChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, statusChangeResponse{From: c.From, To: c.To, Actor: c.Actor, Reason: c.Reason, ChangedAt: c.ChangedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": r.PathValue("id"), "history": out})
}

type transitionRequest struct {
	Status domorder.Status `json:"status"`
	Reason string          `json:"reason"`
}

func (h *Handler) handleTransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	o, err := h.orders.TransitionStatus(r.Context(), apporder.TransitionInput{
		OrderID: r.PathValue("id"),
		Status:  req.Status,
		Actor:   actorFrom(r),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// decodeReason accepts an empty body.
func decodeReason(r *http.Request) (string, error) {
	if r.ContentLength == 0 {
		return "", nil
	}
	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	return req.Reason, nil
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), actorFrom(r), reason)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	o, err := h.orders.Refund(r.Context(), r.PathValue("id"), actorFrom(r), reason)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type payRequest struct {
	Method         dompay.Method `json:"method"`
	TransactionRef string        `json:"transaction_ref"`
}

type paymentResponse struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         dompay.Method   `json:"method"`
	Status         dompay.Status   `json:"status"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	PaidAt         time.Time       `json:"paid_at"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
}

func toPaymentResponse(p *dompay.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Method:         p.Method,
		Status:         p.Status,
		TransactionRef: p.TransactionRef,
		PaidAt:         p.PaidAt,
		RefundedAt:     p.RefundedAt,
	}
}

type payResponse struct {
	Order    orderResponse    `json:"order"`
	Payment  *paymentResponse `json:"payment"`
	Replayed bool             `json:"replayed"`
}

func (h *Handler) handlePayOrder(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	res, err := h.payments.MarkPaid(r.Context(), apppayment.MarkPaidInput{
		OrderID:        r.PathValue("id"),
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		Actor:          actorFrom(r),
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{
		Order:    toOrderResponse(res.Order),
		Payment:  toPaymentResponse(res.Payment),
		Replayed: res.Replayed,
	})
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}
