package application_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"bookstore/internal/service/order/application"
	"bookstore/internal/service/order/domain"
	"bookstore/internal/service/order/domain/port"
)

// fakeOrderRepo 在内存里模拟订单仓储和共享的库存台账，
// 取消时的回补语义与 GORM 实现一致。
type fakeOrderRepo struct {
	mu     sync.Mutex
	nextID uint64
	orders map[uint64]*domain.Order
	stock  map[uint64]int
}

func newFakeOrderRepo(stock map[uint64]int) *fakeOrderRepo {
	if stock == nil {
		stock = map[uint64]int{}
	}
	return &fakeOrderRepo{orders: map[uint64]*domain.Order{}, stock: stock}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.Assignment != nil {
		a := *o.Assignment
		c.Assignment = &a
	}
	return &c
}

func (r *fakeOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uint64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) TransitionFromPending(_ context.Context, id uint64, to domain.Status, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.StatusPending {
		return false, nil
	}
	o.Status = to
	o.FailureReason = reason
	return true, nil
}

func (r *fakeOrderRepo) Cancel(_ context.Context, id uint64) (domain.CancelDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.CancelDecision{}, domain.ErrOrderNotFound
	}
	decision := o.Cancel()
	if decision.Restock {
		for _, l := range o.Lines {
			r.stock[l.BookID] += l.Quantity
		}
	}
	return decision, nil
}

type fakeCatalog struct {
	books map[uint64]port.BookInfo
	err   error
	calls int
}

func (c *fakeCatalog) GetBooks(_ context.Context, ids []uint64) (map[uint64]port.BookInfo, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := map[uint64]port.BookInfo{}
	for _, id := range ids {
		if b, ok := c.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func newService(repo *fakeOrderRepo, catalog port.CatalogService) *application.OrderApplicationService {
	return application.NewOrderApplicationService(repo, catalog, otel.Tracer("test"))
}

func validCreateRequest() *application.CreateOrderRequest {
	return &application.CreateOrderRequest{
		UserID:           7,
		ShippingMethodID: 1,
		Address:          "42 Nguyen Hue, District 1",
		TotalAmount:      decimal.NewFromInt(120),
		ShippingFee:      decimal.NewFromInt(10),
		DiscountAmount:   decimal.NewFromInt(5),
		FinalAmount:      decimal.NewFromInt(125),
		PaymentMethod:    "cash",
		Items: []application.CreateOrderItem{
			{BookID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{BookID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPending), view.Status)
	assert.NotZero(t, view.ID)
	assert.Len(t, view.Lines, 2)

	stored, err := repo.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestCreateOrderValidation(t *testing.T) {
	svc := newService(newFakeOrderRepo(nil), nil)

	req := validCreateRequest()
	req.Items[0].Quantity = 0
	_, err := svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrValidation)

	req = validCreateRequest()
	req.PaymentMethod = "bitcoin"
	_, err = svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrValidation)
}

// 场景：已确认订单取消后，每个行项目的库存恰好回补其数量
func TestCancelConfirmedOrderRestocks(t *testing.T) {
	stock := map[uint64]int{1: 3, 2: 0}
	repo := newFakeOrderRepo(stock)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	changed, err := repo.TransitionFromPending(context.Background(), view.ID, domain.StatusConfirmed, "")
	require.NoError(t, err)
	require.True(t, changed)

	resp, err := svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	assert.Equal(t, 5, stock[1]) // 3 + 2
	assert.Equal(t, 1, stock[2]) // 0 + 1

	stored, err := repo.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

// 场景：已送达订单取消不回补库存
func TestCancelDeliveredOrderNoRestock(t *testing.T) {
	stock := map[uint64]int{1: 3, 2: 0}
	repo := newFakeOrderRepo(stock)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = svc.AssignOrder(context.Background(), &application.AssignOrderRequest{
		OrderID: view.ID, ShipperID: 3, AssignerID: 9,
	})
	require.NoError(t, err)
	_, err = svc.CompleteOrder(context.Background(), view.ID)
	require.NoError(t, err)

	resp, err := svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, stock[1])
	assert.Equal(t, 0, stock[2])
}

// 场景：重复取消是幂等的，第二次不再回补
func TestCancelTwiceIdempotent(t *testing.T) {
	stock := map[uint64]int{1: 0, 2: 0}
	repo := newFakeOrderRepo(stock)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stock[1])

	resp, err := svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, stock[1]) // 没有二次回补
	assert.Equal(t, 1, stock[2])
}

// 场景：已取消订单不可被手动确认复活，否则再次取消会二次回补库存
func TestConfirmCancelledOrderRejected(t *testing.T) {
	stock := map[uint64]int{1: 0, 2: 0}
	repo := newFakeOrderRepo(stock)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stock[1])
	require.Equal(t, 1, stock[2])

	_, err = svc.ConfirmOrder(context.Background(), view.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := repo.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)

	// 再取消一次仍是空操作，库存没有二次回补
	resp, err := svc.CancelOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, stock[1])
	assert.Equal(t, 1, stock[2])
}

func TestConfirmDeliveredOrderRejected(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	_, err = svc.AssignOrder(context.Background(), &application.AssignOrderRequest{
		OrderID: view.ID, ShipperID: 3, AssignerID: 9,
	})
	require.NoError(t, err)
	_, err = svc.CompleteOrder(context.Background(), view.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmOrder(context.Background(), view.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelMissingOrder(t *testing.T) {
	svc := newService(newFakeOrderRepo(nil), nil)
	_, err := svc.CancelOrder(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestAssignValidation(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = svc.AssignOrder(context.Background(), &application.AssignOrderRequest{OrderID: view.ID, AssignerID: 9})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AssignOrder(context.Background(), &application.AssignOrderRequest{OrderID: view.ID, ShipperID: 3})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := svc.AssignOrder(context.Background(), &application.AssignOrderRequest{
		OrderID: view.ID, ShipperID: 3, AssignerID: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusDelivering), got.Status)
	require.NotNil(t, got.Assignment)
	assert.Equal(t, uint64(3), got.Assignment.ShipperID)
}

func TestCompleteStampsAssignment(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	svc := newService(repo, nil)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	_, err = svc.AssignOrder(context.Background(), &application.AssignOrderRequest{
		OrderID: view.ID, ShipperID: 3, AssignerID: 9,
	})
	require.NoError(t, err)

	got, err := svc.CompleteOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusDelivered), got.Status)
	require.NotNil(t, got.Assignment)
	assert.NotNil(t, got.Assignment.CompletedAt)
}

func TestGetOrderEnrichment(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	catalog := &fakeCatalog{books: map[uint64]port.BookInfo{
		1: {ID: 1, Title: "The Go Programming Language"},
	}}
	svc := newService(repo, catalog)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	require.NotNil(t, got.Lines[0].Book)
	assert.Equal(t, "The Go Programming Language", got.Lines[0].Book.Title)
	assert.Nil(t, got.Lines[1].Book) // 目录服务没有这本书的信息
}

func TestGetOrderCatalogFailureDegrades(t *testing.T) {
	repo := newFakeOrderRepo(nil)
	catalog := &fakeCatalog{err: assert.AnError}
	svc := newService(repo, catalog)

	view, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
	assert.Nil(t, got.Lines[0].Book)
}
