// internal/pkg/mq/local.go
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"bookstore/internal/pkg/logger"
)

const (
	defaultQueueDepth = 1024
	defaultWorkers    = 4
	defaultMaxRetries = 3
)

// delivery 包装一条待投递的消息及其已尝试次数。
type delivery struct {
	msg      Message
	attempts int
}

// LocalBus 是进程内的消息总线实现：每个主题一条带缓冲的队列，
// 后台 worker 池即到即处理。消息在入队前先写进持久化日志，
// 处理成功后标记完成；订阅启动时回放上次未处理完的消息，
// 因此进程重启不丢消息。处理失败时重新入队，最多重投 maxRetries 次，
// 耗尽后在日志里标记为死信留待人工恢复。投递语义为 at-least-once。
type LocalBus struct {
	journal Journal

	mu         sync.Mutex
	queues     map[string]chan delivery
	subscribed map[string]bool

	workers    int
	maxRetries int

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLocalBus 创建进程内总线。journal 为 nil 时消息只存在于内存，
// 进程退出即丢失，仅适合一次性工具和测试。
func NewLocalBus(journal Journal) *LocalBus {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &LocalBus{
		journal:    journal,
		queues:     make(map[string]chan delivery),
		subscribed: make(map[string]bool),
		workers:    defaultWorkers,
		maxRetries: defaultMaxRetries,
		g:          g,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *LocalBus) queue(topic string) chan delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[topic]
	if !ok {
		q = make(chan delivery, defaultQueueDepth)
		b.queues[topic] = q
	}
	return q
}

func (b *LocalBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mq: marshal payload for topic %s: %w", topic, err)
	}

	// 关闭后队列不再被消费，入队只会丢消息
	if b.ctx.Err() != nil {
		return fmt.Errorf("mq: local bus closed")
	}

	msg := Message{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: data,
		Headers: map[string]string{},
	}
	// 将追踪上下文注入消息头，消费侧恢复
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Headers))

	// 先落日志再入队：入队后崩溃，消息在下次订阅时被回放
	if b.journal != nil {
		if err := b.journal.Append(ctx, msg); err != nil {
			return fmt.Errorf("mq: journal message for topic %s: %w", topic, err)
		}
	}

	select {
	case b.queue(topic) <- delivery{msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return fmt.Errorf("mq: local bus closed")
	}
}

func (b *LocalBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	if b.subscribed[topic] {
		b.mu.Unlock()
		return fmt.Errorf("mq: topic %s already subscribed", topic)
	}
	b.subscribed[topic] = true
	b.mu.Unlock()

	q := b.queue(topic)

	// 回放日志里未处理完的消息（上次运行入队了但没等到处理完）
	if b.journal != nil {
		pending, err := b.journal.Pending(b.ctx, topic)
		if err != nil {
			return fmt.Errorf("mq: replay pending messages for topic %s: %w", topic, err)
		}
		for _, msg := range pending {
			select {
			case q <- delivery{msg: msg}:
			case <-b.ctx.Done():
				return fmt.Errorf("mq: local bus closed")
			}
		}
		if len(pending) > 0 {
			logger.Logger.Info().Str("topic", topic).Int("count", len(pending)).Msg("replayed pending messages from journal")
		}
	}

	for i := 0; i < b.workers; i++ {
		b.g.Go(func() error {
			b.work(q, handler)
			return nil
		})
	}
	return nil
}

func (b *LocalBus) work(q chan delivery, handler Handler) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-q:
			b.dispatch(d, q, handler)
		}
	}
}

func (b *LocalBus) dispatch(d delivery, q chan delivery, handler Handler) {
	ctx := otel.GetTextMapPropagator().Extract(b.ctx, propagation.MapCarrier(d.msg.Headers))

	err := handler(ctx, d.msg)
	if err == nil {
		if b.journal != nil {
			if markErr := b.journal.MarkDone(ctx, d.msg.ID); markErr != nil {
				// 标记失败只会导致下次启动重放这条消息，at-least-once 允许
				logger.Ctx(ctx).Warn().Err(markErr).Str("message_id", d.msg.ID).Msg("failed to mark message done in journal")
			}
		}
		return
	}

	d.attempts++
	if d.attempts > b.maxRetries {
		// 重试耗尽：死信留在日志里，等待人工排障后重置回 PENDING
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", d.msg.Topic).
			Str("message_id", d.msg.ID).
			Int("attempts", d.attempts).
			Msg("retries exhausted, message moved to dead letters")
		if b.journal != nil {
			if markErr := b.journal.MarkDead(ctx, d.msg.ID, err.Error()); markErr != nil {
				logger.Ctx(ctx).Error().Err(markErr).Str("message_id", d.msg.ID).Msg("failed to mark message dead in journal")
			}
		}
		return
	}
	logger.Ctx(ctx).Warn().Err(err).
		Str("topic", d.msg.Topic).
		Str("message_id", d.msg.ID).
		Int("attempt", d.attempts).
		Msg("handler failed, requeueing message")

	// 重新入队，等待任一 worker 再次投递
	select {
	case q <- d:
	case <-b.ctx.Done():
	}
}

func (b *LocalBus) Close() error {
	b.cancel()
	return b.g.Wait()
}
