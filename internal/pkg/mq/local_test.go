package mq_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/pkg/mq"
)

type testEvent struct {
	OrderID uint64 `json:"orderId"`
}

// memJournal 是内存版的持久化日志，记录每条消息的状态迁移。
type memJournal struct {
	mu      sync.Mutex
	states  map[string]string // id -> PENDING/DONE/DEAD
	reasons map[string]string
	seeded  []mq.Message // Pending 回放的预置消息
}

func newMemJournal() *memJournal {
	return &memJournal{states: map[string]string{}, reasons: map[string]string{}}
}

func (j *memJournal) Append(_ context.Context, msg mq.Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states[msg.ID] = "PENDING"
	return nil
}

func (j *memJournal) MarkDone(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states[id] = "DONE"
	return nil
}

func (j *memJournal) MarkDead(_ context.Context, id string, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states[id] = "DEAD"
	j.reasons[id] = reason
	return nil
}

func (j *memJournal) Pending(_ context.Context, topic string) ([]mq.Message, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []mq.Message
	for _, m := range j.seeded {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out, nil
}

func (j *memJournal) state(id string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.states[id]
}

func TestLocalBusDeliversToSubscriber(t *testing.T) {
	journal := newMemJournal()
	bus := mq.NewLocalBus(journal)
	defer bus.Close()

	received := make(chan mq.Message, 1)
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, msg mq.Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "order.created", testEvent{OrderID: 42}))

	select {
	case msg := <-received:
		assert.Equal(t, "order.created", msg.Topic)
		assert.NotEmpty(t, msg.ID)
		var ev testEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, uint64(42), ev.OrderID)
		// 处理成功后日志里标记完成
		require.Eventually(t, func() bool { return journal.state(msg.ID) == "DONE" }, 2*time.Second, 10*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestLocalBusTopicsAreIsolated(t *testing.T) {
	bus := mq.NewLocalBus(newMemJournal())
	defer bus.Close()

	var wrongTopic atomic.Int64
	received := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe("order.stock.success", func(_ context.Context, msg mq.Message) error {
		if msg.Topic != "order.stock.success" {
			wrongTopic.Add(1)
		}
		received <- struct{}{}
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "order.stock.failed", testEvent{OrderID: 1}))
	require.NoError(t, bus.Publish(context.Background(), "order.stock.success", testEvent{OrderID: 2}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	assert.Zero(t, wrongTopic.Load())
}

// 处理函数失败时重新入队，成功前的尝试次数不丢失
func TestLocalBusRetriesFailedHandler(t *testing.T) {
	bus := mq.NewLocalBus(newMemJournal())
	defer bus.Close()

	var attempts atomic.Int64
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, _ mq.Message) error {
		if attempts.Add(1) < 3 {
			return assert.AnError
		}
		close(done)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "order.created", testEvent{OrderID: 7}))

	select {
	case <-done:
		assert.Equal(t, int64(3), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not retried to success, attempts=%d", attempts.Load())
	}
}

// 重试耗尽的消息进死信，不是悄悄消失：日志里保留记录和失败原因
func TestLocalBusDeadLettersAfterRetriesExhausted(t *testing.T) {
	journal := newMemJournal()
	bus := mq.NewLocalBus(journal)
	defer bus.Close()

	var attempts atomic.Int64
	var msgID atomic.Value
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, msg mq.Message) error {
		msgID.Store(msg.ID)
		attempts.Add(1)
		return assert.AnError
	}))

	require.NoError(t, bus.Publish(context.Background(), "order.created", testEvent{OrderID: 7}))

	// 首次投递 + 3 次重投，之后不再增长
	require.Eventually(t, func() bool { return attempts.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(4), attempts.Load())

	id, ok := msgID.Load().(string)
	require.True(t, ok)
	require.Eventually(t, func() bool { return journal.state(id) == "DEAD" }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, journal.reasons[id], assert.AnError.Error())
}

// 上次运行没处理完的消息在订阅时回放（进程重启不丢消息）
func TestLocalBusReplaysPendingOnSubscribe(t *testing.T) {
	journal := newMemJournal()
	payload, err := json.Marshal(testEvent{OrderID: 99})
	require.NoError(t, err)
	journal.seeded = []mq.Message{
		{ID: "leftover-1", Topic: "order.created", Payload: payload},
		{ID: "other-topic", Topic: "order.stock.success", Payload: payload},
	}

	bus := mq.NewLocalBus(journal)
	defer bus.Close()

	received := make(chan mq.Message, 1)
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, msg mq.Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "leftover-1", msg.ID)
		var ev testEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, uint64(99), ev.OrderID)
		require.Eventually(t, func() bool { return journal.state("leftover-1") == "DONE" }, 2*time.Second, 10*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("pending message was not replayed")
	}
	// 别的主题的遗留消息不会被这个订阅回放
	assert.Empty(t, journal.state("other-topic"))
}

func TestLocalBusDuplicateSubscribe(t *testing.T) {
	bus := mq.NewLocalBus(newMemJournal())
	defer bus.Close()

	handler := func(_ context.Context, _ mq.Message) error { return nil }
	require.NoError(t, bus.Subscribe("order.created", handler))
	require.Error(t, bus.Subscribe("order.created", handler))
}

func TestLocalBusConcurrentPublish(t *testing.T) {
	bus := mq.NewLocalBus(newMemJournal())
	defer bus.Close()

	const total = 200
	var received atomic.Int64
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, _ mq.Message) error {
		received.Add(1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < total/10; j++ {
				_ = bus.Publish(context.Background(), "order.created", testEvent{OrderID: uint64(j)})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return received.Load() == total }, 2*time.Second, 10*time.Millisecond)
}

func TestLocalBusPublishAfterClose(t *testing.T) {
	bus := mq.NewLocalBus(newMemJournal())
	require.NoError(t, bus.Close())
	require.Error(t, bus.Publish(context.Background(), "order.created", testEvent{OrderID: 1}))
}
