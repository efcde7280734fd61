// internal/service/inventory/application/reservation.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/logger"
	"bookstore/internal/pkg/metrics"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/service/inventory/domain"
)

// ReservationService 消费 order.created 事件，原子地决定一单能否整体预占，
// 并把结果事件发回总线。
type ReservationService struct {
	stocks domain.StockRepository
	bus    mq.Bus
	tracer trace.Tracer
}

func NewReservationService(stocks domain.StockRepository, bus mq.Bus, tracer trace.Tracer) *ReservationService {
	return &ReservationService{stocks: stocks, bus: bus, tracer: tracer}
}

// HandleOrderCreated 是 order.created 主题的消费入口。
// 返回错误表示消息未被确认，总线会再次投递；幂等台账保证
// 重复投递不会二次扣减。
func (s *ReservationService) HandleOrderCreated(ctx context.Context, msg mq.Message) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleOrderCreated", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event contracts.OrderCreatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("malformed order created event, skipping")
		return nil
	}
	if event.OrderID == 0 || len(event.OrderDetails) == 0 {
		logger.Ctx(ctx).Error().Str("message_id", msg.ID).Msg("order created event missing order id or details, skipping")
		return nil
	}
	span.SetAttributes(attribute.Int64("order.id", int64(event.OrderID)))

	// 重复投递：直接复用台账里的首次结果，不再触碰库存
	if prior, err := s.stocks.Lookup(ctx, event.OrderID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ledger lookup for order %d: %w", event.OrderID, err)
	} else if prior != nil {
		metrics.DuplicateDeliveries.Inc()
		logger.Ctx(ctx).Info().Uint64("order_id", event.OrderID).Msg("duplicate delivery, replaying recorded outcome")
		return s.publishOutcome(ctx, prior)
	}

	outcome, err := s.reserve(ctx, &event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation aborted")
		return err
	}

	return s.publishOutcome(ctx, outcome)
}

// reserve 执行一次预占并返回要发布的结果。
// 返回非 nil 错误仅表示基础设施故障，交给总线重投；
// 业务失败（缺书、库存不足）会转化为失败结果。
func (s *ReservationService) reserve(ctx context.Context, event *contracts.OrderCreatedEvent) (*domain.Outcome, error) {
	items := make([]domain.ReservationItem, 0, len(event.OrderDetails))
	for _, d := range event.OrderDetails {
		if d.BookID == 0 || d.Quantity < 1 {
			return s.recordFailure(ctx, event.OrderID,
				fmt.Sprintf("invalid line item: book %d quantity %d", d.BookID, d.Quantity))
		}
		items = append(items, domain.ReservationItem{BookID: d.BookID, Quantity: d.Quantity})
	}

	// 按图书 id 的固定顺序加锁，避免共享条目的并发订单互相死锁
	sort.Slice(items, func(i, j int) bool { return items[i].BookID < items[j].BookID })

	err := s.stocks.ReserveAll(ctx, event.OrderID, items)
	switch {
	case err == nil:
		metrics.Reservations.WithLabelValues("success").Inc()
		logger.Ctx(ctx).Info().Uint64("order_id", event.OrderID).Int("lines", len(items)).Msg("stock reserved for order")
		return &domain.Outcome{OrderID: event.OrderID, Success: true}, nil

	case errors.Is(err, domain.ErrAlreadyProcessed):
		// 与另一次投递的竞争：对方已提交，取其结果
		prior, lookupErr := s.stocks.Lookup(ctx, event.OrderID)
		if lookupErr != nil || prior == nil {
			return nil, fmt.Errorf("order %d processed concurrently but ledger lookup failed: %w", event.OrderID, lookupErr)
		}
		metrics.DuplicateDeliveries.Inc()
		return prior, nil

	case errors.Is(err, domain.ErrBookNotFound):
		return s.recordFailure(ctx, event.OrderID, err.Error())

	default:
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			return s.recordFailure(ctx, event.OrderID, insufficient.Error())
		}
		// 连接中断等基础设施错误：不落台账，等待重投
		return nil, fmt.Errorf("reserve stock for order %d: %w", event.OrderID, err)
	}
}

func (s *ReservationService) recordFailure(ctx context.Context, orderID uint64, reason string) (*domain.Outcome, error) {
	if err := s.stocks.RecordFailure(ctx, orderID, reason); err != nil {
		return nil, fmt.Errorf("record reservation failure for order %d: %w", orderID, err)
	}
	metrics.Reservations.WithLabelValues("failed").Inc()
	logger.Ctx(ctx).Warn().Uint64("order_id", orderID).Str("reason", reason).Msg("stock reservation failed")
	return &domain.Outcome{OrderID: orderID, Success: false, Reason: reason}, nil
}

// publishOutcome 把预占结果发回总线。发布失败返回错误，
// 消息重投后台账会保证结果事件最终发出且不二次扣减。
func (s *ReservationService) publishOutcome(ctx context.Context, outcome *domain.Outcome) error {
	if outcome.Success {
		err := s.bus.Publish(ctx, contracts.TopicStockSuccess, contracts.StockSuccessEvent{OrderID: outcome.OrderID})
		if err != nil {
			metrics.PublishFailures.WithLabelValues(contracts.TopicStockSuccess).Inc()
			return fmt.Errorf("publish stock success for order %d: %w", outcome.OrderID, err)
		}
		return nil
	}

	err := s.bus.Publish(ctx, contracts.TopicStockFailed, contracts.StockFailedEvent{
		OrderID: outcome.OrderID,
		Reason:  outcome.Reason,
	})
	if err != nil {
		metrics.PublishFailures.WithLabelValues(contracts.TopicStockFailed).Inc()
		return fmt.Errorf("publish stock failure for order %d: %w", outcome.OrderID, err)
	}
	return nil
}
