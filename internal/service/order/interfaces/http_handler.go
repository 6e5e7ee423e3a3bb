package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
	"storefront/internal/service/order/port"
)

const serviceName = "order-hub"

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	checkout *application.CheckoutService
	hub      *hub.Hub
	ledger   port.StockLedger
	gateway  *PushGateway
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(checkout *application.CheckoutService, h *hub.Hub, ledger port.StockLedger, gateway *PushGateway) *OrderHandler {
	return &OrderHandler{checkout: checkout, hub: h, ledger: ledger, gateway: gateway}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /checkout", h.checkoutHandler)
	mux.HandleFunc("GET /orders", h.listOrdersHandler)
	mux.HandleFunc("GET /orders/{id}", h.getOrderHandler)
	mux.HandleFunc("POST /orders/{id}/transition", h.transitionHandler)
	mux.HandleFunc("GET /snapshot", h.snapshotHandler)
	mux.HandleFunc("GET /stock/{productId}", h.stockHandler)
	if h.gateway != nil {
		mux.HandleFunc("GET /ws", h.gateway.ServeWs)
	}
}

func (h *OrderHandler) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.Checkout")
	defer span.End()

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
		return
	}
	span.SetAttributes(attribute.Int("basket.lines", len(req.Lines)))

	result, err := h.checkout.Checkout(ctx, req.Lines)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := CheckoutResponse{Order: result.Order, Receipt: result.Receipt, Shortages: result.Shortages}
	if !result.Succeeded() {
		// 库存不足是正常的业务结果，返回 409 和不足列表
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	logger.Ctx(ctx).Info().Int64("order", result.Order.ID).Msg("checkout completed over http")
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Orders())
}

func (h *OrderHandler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Snapshot())
}

func (h *OrderHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	order, err := h.hub.Order(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Order   domain.Order         `json:"order"`
		Receipt *application.Receipt `json:"receipt"`
	}{order, application.NewReceipt(&order, nil)})
}

// transitionHandler 是拣货端的指令入口
func (h *OrderHandler) transitionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	// 空请求体表示推进到下一个状态
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
		return
	}

	state, err := applyTransition(ctx, h.hub, id, req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ServerMessage{Type: MsgAck, OrderID: id, State: state})
}

func (h *OrderHandler) stockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "productId")
	if !ok {
		return
	}
	q, err := h.ledger.Available(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": id, "available": q})
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: name + " must be an integer"})
		return 0, false
	}
	return v, true
}

// writeError 业务拒绝映射到 4xx，基础设施故障映射到 5xx
func writeError(w http.ResponseWriter, err error) {
	var temporary interface{ Temporary() bool }
	switch {
	case domain.IsFault(err):
		status := http.StatusInternalServerError
		if errors.As(err, &temporary) && temporary.Temporary() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Fault: true})
	case errors.Is(err, domain.ErrUnknownOrder), errors.Is(err, domain.ErrUnknownProduct):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrEmptyBasket), errors.Is(err, domain.ErrInvalidQuantity):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, hub.ErrHubClosed):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
