// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bookstore/internal/pkg/logger"
	"bookstore/internal/service/order/application"
	"bookstore/internal/service/order/domain"
	"bookstore/internal/service/order/domain/port"
)

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service  *application.OrderApplicationService
	identity port.IdentityService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(service *application.OrderApplicationService, identity port.IdentityService) *OrderHandler {
	return &OrderHandler{service: service, identity: identity}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /orders", h.withAuth(h.createOrder))
	mux.HandleFunc("GET /orders/{id}", h.withAuth(h.getOrder))
	mux.HandleFunc("POST /orders/{id}/cancel", h.withAuth(h.cancelOrder))
	mux.HandleFunc("POST /orders/{id}/confirm", h.withAuth(h.confirmOrder))
	mux.HandleFunc("POST /orders/{id}/complete", h.withAuth(h.completeOrder))
	mux.HandleFunc("POST /orders/{id}/assign", h.withAuth(h.assignOrder))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user port.UserInfo)

// withAuth 重建追踪上下文并通过身份服务校验 Bearer token。
func (h *OrderHandler) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		r = r.WithContext(ctx)

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := h.identity.Validate(ctx, token)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("identity validation failed")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, user)
	}
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request, user port.UserInfo) {
	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// 购买人以会话身份为准，不信任请求体里的 userId
	req.UserID = user.UserID

	view, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request, _ port.UserInfo) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request, _ port.UserInfo) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.CancelOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) confirmOrder(w http.ResponseWriter, r *http.Request, _ port.UserInfo) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.ConfirmOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) completeOrder(w http.ResponseWriter, r *http.Request, _ port.UserInfo) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.CompleteOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) assignOrder(w http.ResponseWriter, r *http.Request, user port.UserInfo) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req application.AssignOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OrderID = id
	if req.AssignerID == 0 {
		req.AssignerID = user.UserID
	}

	view, err := h.service.AssignOrder(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
