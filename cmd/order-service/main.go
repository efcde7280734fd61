// cmd/order-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"bookstore/internal/pkg/bootstrap"
	"bookstore/internal/pkg/cache"
	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/database"
	"bookstore/internal/pkg/httpclient"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/pkg/outbox"
	invapp "bookstore/internal/service/inventory/application"
	invinfra "bookstore/internal/service/inventory/infrastructure"
	"bookstore/internal/service/order/application"
	"bookstore/internal/service/order/infrastructure"
	"bookstore/internal/service/order/infrastructure/adapter"
	"bookstore/internal/service/order/interfaces"
)

const (
	serviceName  = "order-service"
	servicePort  = 8080
	bookCacheTTL = 5 * time.Minute
)

// main 函数是应用的"组装根" (Composition Root)：
// 创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.GetCurrentConfig()

	db, err := database.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	if err := db.AutoMigrate(
		&infrastructure.OrderModel{},
		&infrastructure.OrderLineModel{},
		&infrastructure.OrderAssignmentModel{},
		&outbox.Record{},
	); err != nil {
		log.Fatalf("failed to migrate order tables: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	httpClient := httpclient.NewClient(tracer)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Infra.Redis.Addr})
	bookCache := cache.New(redisClient, bookCacheTTL)

	identity := adapter.NewIdentityHTTPAdapter(httpClient, cfg.Services.Identity.URL)
	catalog := adapter.NewCatalogHTTPAdapter(httpClient, bookCache, cfg.Services.Catalog.URL)

	orderRepo := infrastructure.NewGormOrderRepository(db)
	appSvc := application.NewOrderApplicationService(orderRepo, catalog, tracer)

	// 按配置选择总线后端并显式注入
	var bus mq.Bus
	if cfg.Infra.Bus.Backend == "local" {
		// 进程内队列以共享 MySQL 为持久化日志，重启后回放未处理的消息
		if err := db.AutoMigrate(&mq.JournalRecord{}); err != nil {
			log.Fatalf("failed to migrate local queue table: %v", err)
		}
		bus = mq.NewLocalBus(mq.NewGormJournal(db))
	} else {
		bus = mq.NewKafkaBus(cfg.Infra.Kafka.Brokers, serviceName)
	}

	relayCtx, cancelRelay := context.WithCancel(context.Background())

	// 订单侧消费库存预占的结果事件
	if err := bus.Subscribe(contracts.TopicStockSuccess, appSvc.HandleStockSuccess); err != nil {
		log.Fatalf("failed to subscribe %s: %v", contracts.TopicStockSuccess, err)
	}
	if err := bus.Subscribe(contracts.TopicStockFailed, appSvc.HandleStockFailed); err != nil {
		log.Fatalf("failed to subscribe %s: %v", contracts.TopicStockFailed, err)
	}

	// local 后端是进程内队列：单体部署形态，库存预占处理器
	// 必须和订单服务跑在同一个进程里才能收到事件
	if cfg.Infra.Bus.Backend == "local" {
		stockRepo := invinfra.NewGormStockRepository(db)
		if err := db.AutoMigrate(&invinfra.StockModel{}, &invinfra.ReservationLedgerModel{}); err != nil {
			log.Fatalf("failed to migrate inventory tables: %v", err)
		}
		reservation := invapp.NewReservationService(stockRepo, bus, tracer)
		if err := bus.Subscribe(contracts.TopicOrderCreated, reservation.HandleOrderCreated); err != nil {
			log.Fatalf("failed to subscribe %s: %v", contracts.TopicOrderCreated, err)
		}

		// 单体形态下 outbox 中继也在进程内跑
		relay := outbox.NewRelay(db, bus)
		go relay.Run(relayCtx)
	}

	handler := interfaces.NewOrderHandler(appSvc, identity)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Cleanup: func() {
			cancelRelay()
			if err := bus.Close(); err != nil {
				log.Printf("Error closing message bus: %v", err)
			}
			redisClient.Close()
		},
	})
}
