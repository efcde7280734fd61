// internal/pkg/mq/bus.go
package mq

import (
	"context"
)

// Message 是总线上流转的消息信封：主题名 + 不透明的 JSON 负载。
// 没有 Schema Registry，消费方必须自行校验负载结构。
type Message struct {
	ID      string            `json:"id"`
	Topic   string            `json:"topic"`
	Payload []byte            `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Handler 处理一条投递的消息。返回非 nil 错误表示消息未被确认，
// 由各后端的重投机制决定何时再次投递。
type Handler func(ctx context.Context, msg Message) error

// Bus 是与具体传输无关的发布/消费抽象。
// 两种实现（进程内 Local、托管队列 Kafka）都只保证 at-least-once：
// 消费方必须容忍同一条消息被处理多次。
type Bus interface {
	// Publish 将 payload 序列化为 JSON 后发往指定主题。
	Publish(ctx context.Context, topic string, payload any) error

	// Subscribe 为主题注册处理函数，并在后台开始消费。
	Subscribe(topic string, handler Handler) error

	// Close 停止所有消费循环并释放传输资源。
	Close() error
}
