package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 消费循环只有在处理成功后才提交 offset；失败的消息必须原地重试，
// 不能越过它拉取后续消息（提交后续 offset 会让失败的那条永久丢失）。
func TestKafkaBusRetriesSameMessageUntilSuccess(t *testing.T) {
	bus := NewKafkaBus([]string{"localhost:9092"}, "test-group")
	bus.retryBackoff = time.Millisecond
	bus.maxBackoff = 5 * time.Millisecond
	defer bus.cancel()

	attempts := 0
	ok := bus.handleWithRetry(context.Background(), Message{ID: "m-1", Topic: "order.created"},
		func(_ context.Context, _ Message) error {
			attempts++
			if attempts < 4 {
				return assert.AnError
			}
			return nil
		})

	require.True(t, ok)
	assert.Equal(t, 4, attempts)
}

func TestKafkaBusRetryStopsOnClose(t *testing.T) {
	bus := NewKafkaBus([]string{"localhost:9092"}, "test-group")
	bus.retryBackoff = time.Millisecond

	attempts := make(chan struct{}, 1)
	done := make(chan bool, 1)
	go func() {
		done <- bus.handleWithRetry(context.Background(), Message{ID: "m-1", Topic: "order.created"},
			func(_ context.Context, _ Message) error {
				select {
				case attempts <- struct{}{}:
				default:
				}
				return assert.AnError
			})
	}()

	<-attempts
	bus.cancel()

	select {
	case ok := <-done:
		assert.False(t, ok) // 未处理完，offset 不会被提交
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop after close")
	}
}
