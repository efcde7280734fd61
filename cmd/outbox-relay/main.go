// cmd/outbox-relay/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookstore/internal/pkg/bootstrap"
	"bookstore/internal/pkg/database"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/pkg/outbox"
)

const (
	serviceName = "outbox-relay"
	servicePort = 8084
)

// outbox-relay 是独立的中继进程：轮询订单库的 outbox 表，
// 把已提交事务产生的事件发布到消息总线。
func main() {
	cfg := bootstrap.GetCurrentConfig()

	db, err := database.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}

	bus := mq.NewKafkaBus(cfg.Infra.Kafka.Brokers, serviceName)
	relay := outbox.NewRelay(db, bus)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("outbox relay stopped: %v", err)
		}
	}()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		Cleanup: func() {
			cancel()
			if err := bus.Close(); err != nil {
				log.Printf("Error closing message bus: %v", err)
			}
		},
	})
}
