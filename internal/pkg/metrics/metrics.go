// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated 按支付方式统计创建成功的订单数
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_orders_created_total",
		Help: "Number of orders durably created.",
	}, []string{"payment_method"})

	// OrdersCancelled 统计取消操作，label 区分是否触发了库存回补
	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_orders_cancelled_total",
		Help: "Number of order cancellations.",
	}, []string{"restocked"})

	// Reservations 统计库存预占的结果
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_stock_reservations_total",
		Help: "Stock reservation outcomes.",
	}, []string{"outcome"})

	// DuplicateDeliveries 统计被幂等台账拦截的重复投递
	DuplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_duplicate_event_deliveries_total",
		Help: "Events skipped because they were already processed.",
	})

	// PublishFailures 统计发布到消息总线失败的次数。
	// 事务已提交而发布失败意味着事件可能丢失，必须告警
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_bus_publish_failures_total",
		Help: "Message bus publish failures by topic.",
	}, []string{"topic"})

	// OutboxRelayed 统计 outbox 中继成功发布的事件数
	OutboxRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_outbox_relayed_total",
		Help: "Outbox rows successfully relayed to the bus.",
	})
)
