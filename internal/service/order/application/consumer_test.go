package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/service/order/application"
	"bookstore/internal/service/order/domain"
)

func stockMsg(t *testing.T, topic string, payload string) mq.Message {
	t.Helper()
	return mq.Message{ID: "m-1", Topic: topic, Payload: []byte(payload)}
}

func createPendingOrder(t *testing.T, svc *application.OrderApplicationService) uint64 {
	t.Helper()
	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	return view.ID
}

func TestHandleStockSuccessConfirms(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)
	id := createPendingOrder(t, svc)

	err := svc.HandleStockSuccess(context.Background(),
		stockMsg(t, contracts.TopicStockSuccess, `{"orderId":1}`))
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
}

// at-least-once 投递：同一条成功事件收两次,第二次是空操作
func TestHandleStockSuccessDuplicate(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)
	id := createPendingOrder(t, svc)

	msg := stockMsg(t, contracts.TopicStockSuccess, `{"orderId":1}`)
	require.NoError(t, svc.HandleStockSuccess(context.Background(), msg))
	require.NoError(t, svc.HandleStockSuccess(context.Background(), msg))

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
}

func TestHandleStockFailedRecordsReason(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)
	id := createPendingOrder(t, svc)

	err := svc.HandleStockFailed(context.Background(),
		stockMsg(t, contracts.TopicStockFailed, `{"orderId":1,"reason":"insufficient stock for book 2"}`))
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStockFailed, stored.Status)
	assert.Equal(t, "insufficient stock for book 2", stored.FailureReason)
}

// 订单已被用户取消后才收到库存结果：不覆盖 CANCELLED
func TestStockEventsIgnoreNonPendingOrder(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)
	id := createPendingOrder(t, svc)

	_, err := svc.CancelOrder(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, svc.HandleStockSuccess(context.Background(),
		stockMsg(t, contracts.TopicStockSuccess, `{"orderId":1}`)))
	require.NoError(t, svc.HandleStockFailed(context.Background(),
		stockMsg(t, contracts.TopicStockFailed, `{"orderId":1,"reason":"too late"}`)))

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Empty(t, stored.FailureReason)
}

// 负载不合法的消息吞掉不报错，避免死循环重投
func TestMalformedStockEventsAreSkipped(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)
	id := createPendingOrder(t, svc)

	require.NoError(t, svc.HandleStockSuccess(context.Background(),
		stockMsg(t, contracts.TopicStockSuccess, `not-json`)))
	require.NoError(t, svc.HandleStockSuccess(context.Background(),
		stockMsg(t, contracts.TopicStockSuccess, `{"orderId":0}`)))
	require.NoError(t, svc.HandleStockFailed(context.Background(),
		stockMsg(t, contracts.TopicStockFailed, `{}`)))

	stored, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}
