package httppresentation

import (
	"net/http"
	"time"

	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
)

type issueCouponRequest struct {
	Code         string           `json:"code"`
	Discount     domcoupon.Spec   `json:"discount"`
	StartsAt     string           `json:"starts_at"`
	EndsAt       string           `json:"ends_at"`
	UsageLimit   int              `json:"usage_limit"`
	PerUserLimit int              `json:"per_user_limit"`
	RestaurantID string           `json:"restaurant_id"`
	AllowedUsers []string         `json:"allowed_users"`
	Active       *bool            `json:"active"`
	Policy       domcoupon.Policy `json:"policy"`
}

type couponResponse struct {
	ID           string           `json:"id"`
	Code         string           `json:"code"`
	Discount     domcoupon.Spec   `json:"discount"`
	StartsAt     *time.Time       `json:"starts_at,omitempty"`
	EndsAt       *time.Time       `json:"ends_at,omitempty"`
	UsageLimit   int              `json:"usage_limit"`
	PerUserLimit int              `json:"per_user_limit"`
	RestaurantID string           `json:"restaurant_id,omitempty"`
	AllowedUsers []string         `json:"allowed_users,omitempty"`
	Active       bool             `json:"active"`
	Policy       domcoupon.Policy `json:"policy"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toCouponResponse(c *domcoupon.Coupon) couponResponse {
	return couponResponse{
		ID:           c.ID,
		Code:         c.Code,
		Discount:     domcoupon.SpecOf(c.Discount),
		StartsAt:     optionalTime(c.StartsAt),
		EndsAt:       optionalTime(c.EndsAt),
		UsageLimit:   c.UsageLimit,
		PerUserLimit: c.PerUserLimit,
		RestaurantID: c.RestaurantID,
		AllowedUsers: c.AllowedUsers,
		Active:       c.Active,
		Policy:       c.Policy,
	}
}

func (h *Handler) handleIssueCoupon(w http.ResponseWriter, r *http.Request) {
	var req issueCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	discount, err := req.Discount.Decode()
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	startsAt, err := parseTime("starts_at", req.StartsAt)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	endsAt, err := parseTime("ends_at", req.EndsAt)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	active := req.Active == nil || *req.Active

	c, err := h.coupons.Issue(r.Context(), appcoupon.IssueInput{
		Code:         req.Code,
		Discount:     discount,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		RestaurantID: req.RestaurantID,
		AllowedUsers: req.AllowedUsers,
		Active:       active,
		Policy:       req.Policy,
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

func (h *Handler) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

type redeemRequest struct {
	Code         string `json:"code"`
	UserID       string `json:"user_id"`
	RestaurantID string `json:"restaurant_id"`
	OrderID      string `json:"order_id"`
}

type redeemResponse struct {
	CouponID     string         `json:"coupon_id"`
	Code         string         `json:"code"`
	RedemptionID string         `json:"redemption_id"`
	Discount     domcoupon.Spec `json:"discount"`
	Replayed     bool           `json:"replayed"`
}

func (h *Handler) handleRedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	d, err := h.coupons.ValidateAndRedeem(r.Context(), appcoupon.RedeemInput{
		Code:         req.Code,
		UserID:       req.UserID,
		RestaurantID: req.RestaurantID,
		OrderID:      req.OrderID,
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		CouponID:     d.CouponID,
		Code:         d.Code,
		RedemptionID: d.RedemptionID,
		Discount:     domcoupon.SpecOf(d.Discount),
		Replayed:     d.Replayed,
	})
}
