// internal/service/order/application/consumer.go
package application

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/logger"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/service/order/domain"
)

// HandleStockSuccess 消费 order.stock.success：PENDING -> CONFIRMED。
// 投递语义是 at-least-once，状态写入带 PENDING 前置条件，重复投递是空操作。
func (s *OrderApplicationService) HandleStockSuccess(ctx context.Context, msg mq.Message) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleStockSuccess", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event contracts.StockSuccessEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.OrderID == 0 {
		// 负载不合法的消息无法重试出结果，记录后吞掉
		logger.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("malformed stock success event, skipping")
		return nil
	}

	changed, err := s.orderRepo.TransitionFromPending(ctx, event.OrderID, domain.StatusConfirmed, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to confirm order")
		return fmt.Errorf("confirm order %d from stock success: %w", event.OrderID, err)
	}
	if !changed {
		logger.Ctx(ctx).Info().Uint64("order_id", event.OrderID).Msg("order no longer pending, stock success ignored")
		return nil
	}

	logger.Ctx(ctx).Info().Uint64("order_id", event.OrderID).Msg("order confirmed by stock reservation")
	return nil
}

// HandleStockFailed 消费 order.stock.failed：PENDING -> STOCK_FAILED，记录原因。
func (s *OrderApplicationService) HandleStockFailed(ctx context.Context, msg mq.Message) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleStockFailed", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event contracts.StockFailedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.OrderID == 0 {
		logger.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("malformed stock failed event, skipping")
		return nil
	}

	changed, err := s.orderRepo.TransitionFromPending(ctx, event.OrderID, domain.StatusStockFailed, event.Reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark order stock failed")
		return fmt.Errorf("mark order %d stock failed: %w", event.OrderID, err)
	}
	if !changed {
		logger.Ctx(ctx).Info().Uint64("order_id", event.OrderID).Msg("order no longer pending, stock failure ignored")
		return nil
	}

	logger.Ctx(ctx).Warn().
		Uint64("order_id", event.OrderID).
		Str("reason", event.Reason).
		Msg("order moved to stock failed state")
	return nil
}
