// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"bookstore/internal/pkg/logger"
)

// KafkaBus 是托管队列后端：Publish 把 JSON 负载 base64 编码后写入主题，
// Subscribe 以拉取循环消费，处理函数返回 nil 后才提交 offset（相当于删除消息）。
// 处理失败时在原地带退避重试同一条消息，绝不越过未提交的 offset 继续拉取：
// offset 提交是位置性的，一旦提交了后面的消息，失败的那条就再也不会被投递。
// 投递语义为 at-least-once。
type KafkaBus struct {
	brokers []string
	groupID string

	retryBackoff time.Duration
	maxBackoff   time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewKafkaBus(brokers []string, groupID string) *KafkaBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		brokers:      brokers,
		groupID:      groupID,
		retryBackoff: time.Second,
		maxBackoff:   30 * time.Second,
		writers:      make(map[string]*kafka.Writer),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(b.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mq: marshal payload for topic %s: %w", topic, err)
	}

	// 托管队列只接受文本消息体，JSON 负载做 base64 编码
	encoded := base64.StdEncoding.EncodeToString(data)

	msg := kafka.Message{
		Key:   []byte(uuid.NewString()),
		Value: []byte(encoded),
		Time:  time.Now().UTC(),
	}
	carrier := KafkaHeaderCarrier(msg.Headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = carrier

	if err := b.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("mq: write to topic %s: %w", topic, err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(topic string, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    topic,
		GroupID:  b.groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consumeLoop(reader, topic, handler)
	return nil
}

func (b *KafkaBus) consumeLoop(reader *kafka.Reader, topic string, handler Handler) {
	defer b.wg.Done()
	logger.Logger.Info().Str("topic", topic).Msg("kafka consumer started")

	for {
		// FetchMessage 而不是 ReadMessage：offset 提交由我们在处理成功后显式执行
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				logger.Logger.Info().Str("topic", topic).Msg("kafka consumer shutting down")
				return
			}
			logger.Logger.Error().Err(err).Str("topic", topic).Msg("could not fetch message, retrying")
			time.Sleep(time.Second)
			continue
		}

		carrier := KafkaHeaderCarrier(msg.Headers)
		ctx := otel.GetTextMapPropagator().Extract(b.ctx, &carrier)

		decoded, err := base64.StdEncoding.DecodeString(string(msg.Value))
		if err != nil {
			// 非法编码的消息无法恢复，提交掉以免阻塞分区
			logger.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("malformed message body, skipping")
			if err := reader.CommitMessages(b.ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit malformed message")
			}
			continue
		}

		envelope := Message{
			ID:      string(msg.Key),
			Topic:   topic,
			Payload: decoded,
		}
		if !b.handleWithRetry(ctx, envelope, handler) {
			return
		}

		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("failed to commit message")
		}
	}
}

// handleWithRetry 原地重试同一条消息直到处理成功。
// 不带重试上限：分区在失败的消息上停住，好过提交掉它造成永久丢失；
// 处理方负责把不可恢复的负载识别出来并返回 nil 跳过。
// 返回 false 表示总线已关闭，消息未处理完。
func (b *KafkaBus) handleWithRetry(ctx context.Context, msg Message, handler Handler) bool {
	backoff := b.retryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Str("message_id", msg.ID).
			Int("attempt", attempt).
			Msg("handler failed, retrying same message before advancing")

		select {
		case <-b.ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff < b.maxBackoff {
			backoff *= 2
		}
	}
}

func (b *KafkaBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for _, r := range b.readers {
		r.Close()
	}
	for _, w := range b.writers {
		w.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
