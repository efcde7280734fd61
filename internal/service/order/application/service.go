// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/pkg/logger"
	"bookstore/internal/pkg/metrics"
	"bookstore/internal/service/order/domain"
	"bookstore/internal/service/order/domain/port"
)

// OrderApplicationService 负责订单生命周期的业务编排：
// 同步 API 操作在这里，异步的库存事件消费在 consumer.go。
type OrderApplicationService struct {
	orderRepo domain.OrderRepository
	catalog   port.CatalogService
	tracer    trace.Tracer
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, catalog port.CatalogService, tracer trace.Tracer) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo: orderRepo,
		catalog:   catalog,
		tracer:    tracer,
	}
}

// CreateOrder 校验请求并把订单 + 行项目 + order.created 的 outbox 记录
// 写进同一个事务。事件由 outbox 中继异步发布，提交后不存在丢事件窗口。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()

	input := domain.CreateOrderInput{
		UserID:           req.UserID,
		ShippingMethodID: req.ShippingMethodID,
		Address:          req.Address,
		PromoCode:        req.PromoCode,
		TotalAmount:      req.TotalAmount,
		ShippingFee:      req.ShippingFee,
		DiscountAmount:   req.DiscountAmount,
		FinalAmount:      req.FinalAmount,
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
	}
	for _, item := range req.Items {
		input.Lines = append(input.Lines, domain.LineInput{
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err := domain.NewOrder(input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order validation failed")
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist order")
		return nil, fmt.Errorf("create order: %w", err)
	}

	metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	span.SetAttributes(attribute.Int64("order.id", int64(order.ID)))
	logger.Ctx(ctx).Info().
		Uint64("order_id", order.ID).
		Uint64("user_id", order.UserID).
		Int("lines", len(order.Lines)).
		Msg("order created, awaiting stock reservation")

	return toOrderView(order, nil), nil
}

// GetOrder 加载订单，并通过目录服务给行项目补充图书信息。
// 目录查询失败只降级展示，不影响订单本体的返回。
func (s *OrderApplicationService) GetOrder(ctx context.Context, id uint64) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder")
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var books map[uint64]port.BookInfo
	if s.catalog != nil && len(order.Lines) > 0 {
		ids := make([]uint64, 0, len(order.Lines))
		for _, l := range order.Lines {
			ids = append(ids, l.BookID)
		}
		books, err = s.catalog.GetBooks(ctx, ids)
		if err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).Uint64("order_id", id).Msg("catalog lookup failed, returning order without book details")
			books = nil
		}
	}

	return toOrderView(order, books), nil
}

// CancelOrder 执行取消转移。回补库存和状态写入由仓储放在同一个事务里。
// 对已取消订单的重复调用是成功的空操作。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, id uint64) (*CancelOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder")
	defer span.End()

	decision, err := s.orderRepo.Cancel(ctx, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		span.SetStatus(codes.Error, "cancel transaction failed")
		return nil, fmt.Errorf("cancel order %d: %w", id, err)
	}

	if !decision.Changed {
		logger.Ctx(ctx).Info().Uint64("order_id", id).Msg("order already cancelled, no-op")
		return &CancelOrderResponse{Success: true, Message: "order already cancelled"}, nil
	}

	metrics.OrdersCancelled.WithLabelValues(fmt.Sprintf("%t", decision.Restock)).Inc()
	logger.Ctx(ctx).Info().
		Uint64("order_id", id).
		Bool("restocked", decision.Restock).
		Msg("order cancelled")
	return &CancelOrderResponse{Success: true, Message: "order cancelled"}, nil
}

// ConfirmOrder 是管理端的手动确认，不触碰库存。
// 只能从 PENDING / STOCK_FAILED 进入 CONFIRMED，终态订单拒绝确认。
func (s *OrderApplicationService) ConfirmOrder(ctx context.Context, id uint64) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmOrder")
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.Confirm(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.orderRepo.Update(ctx, order); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("confirm order %d: %w", id, err)
	}
	return toOrderView(order, nil), nil
}

// CompleteOrder 将订单置为 DELIVERED 并给指派记录盖完成时间戳。
func (s *OrderApplicationService) CompleteOrder(ctx context.Context, id uint64) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CompleteOrder")
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.Complete(time.Now()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.orderRepo.Update(ctx, order); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("complete order %d: %w", id, err)
	}
	return toOrderView(order, nil), nil
}

// AssignOrder 指派配送员：三个 id 均为必填，订单进入 DELIVERING。
func (s *OrderApplicationService) AssignOrder(ctx context.Context, req *AssignOrderRequest) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.AssignOrder")
	defer span.End()

	if req.OrderID == 0 {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	order, err := s.orderRepo.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.Assign(req.ShipperID, req.AssignerID, time.Now()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.orderRepo.Update(ctx, order); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assign order %d: %w", req.OrderID, err)
	}

	logger.Ctx(ctx).Info().
		Uint64("order_id", order.ID).
		Uint64("shipper_id", req.ShipperID).
		Msg("order assigned to shipper")
	return toOrderView(order, nil), nil
}
