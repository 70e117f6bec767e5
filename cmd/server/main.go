package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/advisor"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/catalog"
	"pos-service/internal/ledger"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS service", zap.String("store", cfg.Store.Backend))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env, cfg.Observ.TraceSampleRatio)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	snapshots, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer snapshots.Close()
	log.Printf("Store connected: %s", cfg.Store.Backend)

	ctx := context.Background()

	products := catalog.New(snapshots, cfg.Store.Timeout)
	if err := products.Load(ctx); err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	sales := ledger.New(snapshots, cfg.Store.Timeout)
	if err := sales.Load(ctx); err != nil {
		log.Fatalf("Failed to load sales: %v", err)
	}

	users := service.NewUserDirectory(snapshots, cfg.Store.Timeout, bcrypt.DefaultCost)
	if err := users.Load(ctx); err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	var eventPublisher service.EventPublisher = broker.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer)
		log.Println("Kafka producer initialized")
	}

	finalizer := service.NewFinalizer(products, sales, snapshots, eventPublisher, cfg.Store.Timeout)
	inventory := service.NewInventoryService(products, finalizer, eventPublisher)
	sessions := service.NewSessionManager()

	var generator advisor.Generator
	if cfg.Advisor.APIKey != "" {
		gemini, err := advisor.NewGeminiGenerator(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model)
		if err != nil {
			log.Fatalf("Failed to initialize advisor: %v", err)
		}
		generator = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, advisor disabled")
	}
	adv := advisor.New(generator, cfg.Advisor.Timeout)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	persistWorker := worker.NewPersistenceWorker(finalizer, cfg.Store.RetryInterval)
	go func() {
		if err := persistWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Persistence worker error: %v", err)
		}
	}()

	var alertWorker *worker.StockAlertWorker
	if cfg.Kafka.Enabled {
		alertConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		alertWorker = worker.NewStockAlertWorker(alertConsumer, products)
		go func() {
			if err := alertWorker.Start(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Stock alert worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(users, sessions, inventory, finalizer, sales, adv)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if alertWorker != nil {
		alertWorker.Stop()
	}

	if err := finalizer.RetryPersist(shutdownCtx); err != nil {
		logger.Error("Unpersisted sales remain at shutdown", zap.Error(err))
	}

	log.Println("Server exited")
}

// openStore selects the snapshot backend
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendRedis:
		return redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case config.BackendPostgres:
		return store.NewPostgresStore(cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
