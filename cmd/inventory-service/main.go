// cmd/inventory-service/main.go
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"bookstore/internal/pkg/bootstrap"
	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/database"
	"bookstore/internal/pkg/mq"
	"bookstore/internal/service/inventory/application"
	"bookstore/internal/service/inventory/infrastructure"
)

const (
	serviceName = "inventory-service"
	servicePort = 8082
)

func main() {
	cfg := bootstrap.GetCurrentConfig()

	db, err := database.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	if err := db.AutoMigrate(&infrastructure.StockModel{}, &infrastructure.ReservationLedgerModel{}); err != nil {
		log.Fatalf("failed to migrate inventory tables: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	stockRepo := infrastructure.NewGormStockRepository(db)

	// 独立部署的库存服务只在托管队列形态下有意义；
	// local 后端的进程内队列由订单服务单体承载（见 cmd/order-service）
	bus := mq.NewKafkaBus(cfg.Infra.Kafka.Brokers, serviceName)

	reservation := application.NewReservationService(stockRepo, bus, tracer)
	if err := bus.Subscribe(contracts.TopicOrderCreated, reservation.HandleOrderCreated); err != nil {
		log.Fatalf("failed to subscribe %s: %v", contracts.TopicOrderCreated, err)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("GET /stock/{bookId}", func(w http.ResponseWriter, r *http.Request) {
				bookID, err := strconv.ParseUint(r.PathValue("bookId"), 10, 64)
				if err != nil || bookID == 0 {
					http.Error(w, "invalid book id", http.StatusBadRequest)
					return
				}
				entry, err := stockRepo.FindEntry(r.Context(), bookID)
				if err != nil {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(entry)
			})
		},
		Cleanup: func() {
			if err := bus.Close(); err != nil {
				log.Printf("Error closing message bus: %v", err)
			}
		},
	})
}
