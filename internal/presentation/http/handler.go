package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/restaurant-pos/internal/application/order"
	apppayment "github.com/Zhima-Mochi/restaurant-pos/internal/application/payment"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	tracerName           = "restaurant-pos.http"

	headerRequestID    = "X-Request-ID"
	headerRestaurantID = "X-Restaurant-ID"
	headerActorID      = "X-Actor-ID"
	headerActorRole    = "X-Actor-Role"
)

// Services groups the use cases served over HTTP.
type Services struct {
	Orders    *apporder.Service
	Payments  *apppayment.Service
	Inventory *appinventory.Service
	Coupons   *appcoupon.Service
}

type Handler struct {
	orders    *apporder.Service
	payments  *apppayment.Service
	inventory *appinventory.Service
	coupons   *appcoupon.Service
	metrics   http.Handler
	log       observability.Logger
	tel       observability.Observability
}

// NewHandler builds the HTTP surface. metrics may be nil, in which case
// /metrics is not served.
func NewHandler(svc Services, metrics http.Handler, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		orders:    svc.Orders,
		payments:  svc.Payments,
		inventory: svc.Inventory,
		coupons:   svc.Coupons,
		metrics:   metrics,
		log:       baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:       tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger + HTTP metrics → access log → handler
	h.muxHandle(mux, http.MethodPost, "/orders", h.handlePlaceOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}/history", h.handleOrderHistory)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/status", h.handleTransitionOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/cancel", h.handleCancelOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/refund", h.handleRefundOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/pay", h.handlePayOrder)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}/payment", h.handleGetPayment)

	h.muxHandle(mux, http.MethodPost, "/inventory/track", h.handleTrackItem)
	h.muxHandle(mux, http.MethodPost, "/inventory/deduct", h.handleDeductStock)
	h.muxHandle(mux, http.MethodPost, "/inventory/adjust", h.handleAdjustStock)
	h.muxHandle(mux, http.MethodGet, "/inventory/low", h.handleLowStock)
	h.muxHandle(mux, http.MethodGet, "/inventory/{restaurant}/{item}", h.handleGetStock)
	h.muxHandle(mux, http.MethodGet, "/inventory/{restaurant}/{item}/history", h.handleStockHistory)

	h.muxHandle(mux, http.MethodPost, "/coupons", h.handleIssueCoupon)
	h.muxHandle(mux, http.MethodPost, "/coupons/redeem", h.handleRedeemCoupon)
	h.muxHandle(mux, http.MethodGet, "/coupons/{code}", h.handleGetCoupon)

	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, path string, handler http.HandlerFunc) {
	route := method + " " + path
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerRestaurantID) },
			h.tel,
		)(h.withAccessLog(handler)),
	)
	mux.Handle(route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctxWithSpan))

		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Reason is set for coupon rejections.
	Reason string `json:"reason,omitempty"`
}

// writeDomainError maps an error kind to its HTTP status.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Code: errs.Code(err)}
	var rej *domcoupon.Rejection
	if errors.As(err, &rej) {
		resp.Reason = string(rej.Reason)
	}

	status := http.StatusInternalServerError
	switch errs.Kind(err) {
	case errs.ErrValidation:
		status = http.StatusBadRequest
	case errs.ErrNotFound:
		status = http.StatusNotFound
	case errs.ErrConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logctx.FromOr(ctx, h.log).Error("http_request_failed", observability.F("error", err))
		// Storage details stay in the log.
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func actorFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerActorID))
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errs.Validation("%s: %v", field, err)
	}
	return t, nil
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
