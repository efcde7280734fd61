// internal/pkg/outbox/relay.go
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"bookstore/internal/pkg/logger"
	"bookstore/internal/pkg/metrics"
	"bookstore/internal/pkg/mq"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Relay 轮询 outbox 表，把未发布的记录发到消息总线。
// 发布成功才标记 sent_at；任何一步失败都留给下一轮重试，
// 因此下游可能收到重复事件 —— 消费方本来就必须容忍 at-least-once。
type Relay struct {
	db  *gorm.DB
	bus mq.Bus

	pollInterval time.Duration
	batchSize    int
}

func NewRelay(db *gorm.DB, bus mq.Bus) *Relay {
	return &Relay{
		db:           db,
		bus:          bus,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
}

// Run 阻塞运行中继循环，直到 ctx 取消。
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	logger.Logger.Info().Dur("interval", r.pollInterval).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info().Msg("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	records, err := FetchPending(ctx, r.db, r.batchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to fetch pending outbox records")
		return
	}

	for _, rec := range records {
		// Payload 已是 JSON，用 RawMessage 原样转发，避免二次编码
		if err := r.bus.Publish(ctx, rec.Topic, json.RawMessage(rec.Payload)); err != nil {
			metrics.PublishFailures.WithLabelValues(rec.Topic).Inc()
			logger.Ctx(ctx).Error().Err(err).
				Str("topic", rec.Topic).
				Uint64("outbox_id", rec.ID).
				Msg("failed to publish outbox record, will retry")
			return
		}
		if err := MarkSent(ctx, r.db, rec.ID); err != nil {
			// 已发布但未标记：下一轮会重发，依赖消费端幂等
			logger.Ctx(ctx).Error().Err(err).Uint64("outbox_id", rec.ID).Msg("failed to mark outbox record sent")
			return
		}
		metrics.OutboxRelayed.Inc()
	}
}
