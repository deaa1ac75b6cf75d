package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/commerce/application"
	"storefront/internal/service/commerce/domain"
)

// CommerceHandler 封装了引擎对请求层暴露的全部 HTTP 入口。
type CommerceHandler struct {
	carts    *application.CartService
	checkout *application.CheckoutOrchestrator
	orders   *application.OrderService
	ledger   *application.Ledger
}

func NewCommerceHandler(carts *application.CartService, checkout *application.CheckoutOrchestrator, orders *application.OrderService, ledger *application.Ledger) *CommerceHandler {
	return &CommerceHandler{carts: carts, checkout: checkout, orders: orders, ledger: ledger}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CommerceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/cart", h.viewCart)
	mux.HandleFunc("/cart/add", h.addToCart)
	mux.HandleFunc("/cart/update", h.updateCartLine)
	mux.HandleFunc("/cart/remove", h.removeCartLine)

	mux.HandleFunc("/checkout", h.doCheckout)

	mux.HandleFunc("/orders", h.listOrders)
	mux.HandleFunc("/orders/get", h.getOrder)
	mux.HandleFunc("/orders/cancel", h.cancelOrder)
	mux.HandleFunc("/orders/pay", h.payOrder)
	mux.HandleFunc("/orders/payment_failed", h.failPayment)
	mux.HandleFunc("/orders/status", h.advanceStatus)
	mux.HandleFunc("/orders/refund", h.refundOrder)

	mux.HandleFunc("/inventory", h.getAvailable)
	mux.HandleFunc("/inventory/create", h.createInventory)
	mux.HandleFunc("/inventory/adjust", h.adjustInventory)
}

func (h *CommerceHandler) addToCart(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	qty, _ := strconv.Atoi(r.URL.Query().Get("qty"))
	if qty == 0 {
		qty = 1
	}
	view, err := h.carts.AddToCart(ctx, r.URL.Query().Get("customerId"), r.URL.Query().Get("productId"), qty)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CommerceHandler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil {
		http.Error(w, "qty must be an integer", http.StatusBadRequest)
		return
	}
	view, err := h.carts.UpdateLine(ctx, r.URL.Query().Get("customerId"), r.URL.Query().Get("productId"), qty)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CommerceHandler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.carts.RemoveLine(ctx, r.URL.Query().Get("customerId"), r.URL.Query().Get("productId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CommerceHandler) viewCart(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.carts.ViewCart(ctx, r.URL.Query().Get("customerId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type checkoutRequestBody struct {
	CustomerID        string `json:"customerId"`
	ShippingAddressID string `json:"shippingAddressId"`
	BillingAddressID  string `json:"billingAddressId"`
	CustomerNotes     string `json:"customerNotes"`
}

func (h *CommerceHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var body checkoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	order, err := h.checkout.Checkout(ctx, &application.CheckoutRequest{
		CustomerID:        body.CustomerID,
		ShippingAddressID: body.ShippingAddressID,
		BillingAddressID:  body.BillingAddressID,
		CustomerNotes:     body.CustomerNotes,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.ToOrderView(order))
}

func (h *CommerceHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	views, err := h.orders.ListOrders(ctx, r.URL.Query().Get("customerId"), domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *CommerceHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.orders.GetOrder(ctx, r.URL.Query().Get("orderId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CommerceHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.orders.CancelOrder(ctx, r.URL.Query().Get("orderId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "cancelled"})
}

func (h *CommerceHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.orders.MarkPaid(ctx, r.URL.Query().Get("orderId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "paid"})
}

func (h *CommerceHandler) failPayment(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.orders.MarkPaymentFailed(ctx, r.URL.Query().Get("orderId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "payment_failed"})
}

// advanceStatus 按 action 推进履约状态机: processing / shipped / delivered。
func (h *CommerceHandler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	orderID := r.URL.Query().Get("orderId")

	var err error
	action := r.URL.Query().Get("action")
	switch action {
	case "processing":
		err = h.orders.MarkProcessing(ctx, orderID)
	case "shipped":
		err = h.orders.MarkShipped(ctx, orderID)
	case "delivered":
		err = h.orders.MarkDelivered(ctx, orderID)
	default:
		http.Error(w, "unknown action: "+action, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": action})
}

func (h *CommerceHandler) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.orders.Refund(ctx, r.URL.Query().Get("orderId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "refunded"})
}

func (h *CommerceHandler) getAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	available, err := h.ledger.Available(ctx, r.URL.Query().Get("productId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": available})
}

func (h *CommerceHandler) createInventory(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if err := h.ledger.CreateRecord(ctx, r.URL.Query().Get("productId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"result": "created"})
}

func (h *CommerceHandler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	delta, err := strconv.Atoi(r.URL.Query().Get("delta"))
	if err != nil {
		http.Error(w, "delta must be an integer", http.StatusBadRequest)
		return
	}
	if err := h.ledger.Adjust(ctx, r.URL.Query().Get("productId"), delta); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "adjusted"})
}

func extract(r *http.Request) (ctx context.Context) {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 把错误分类翻译成 HTTP 状态码。
// 协议违规与未知错误一律只返回笼统的内部错误，细节只进日志。
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrProductUnavailable),
		errors.Is(err, domain.ErrDuplicateCheckout):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidAddressOwnership):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrBusy):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrInventoryNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
