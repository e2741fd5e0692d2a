package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/noa1020/Finance-master/internal/config"
	"github.com/noa1020/Finance-master/internal/coordinator"
	"github.com/noa1020/Finance-master/internal/events"
	"github.com/noa1020/Finance-master/internal/handler"
	"github.com/noa1020/Finance-master/internal/ledger"
	"github.com/noa1020/Finance-master/internal/middleware"
	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/readmodel"
	"github.com/noa1020/Finance-master/internal/sequence"
	"github.com/noa1020/Finance-master/internal/storage/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store (source of truth)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	store, err := postgres.New(ctx, db)
	if err != nil {
		log.Fatalf("Failed to initialise store: %v", err)
	}

	// Redis (read model cache + event streaming)
	redis, err := newRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	publisher := events.NewStreamPublisher(redis)
	views := readmodel.NewUserViews(redis)

	// --- coordinator wiring ---
	bookLedger := ledger.New(store, views, publisher)
	ids := sequence.New()

	expenses := coordinator.NewEntries(models.KindExpense, store, store, bookLedger, ids, publisher)
	revenues := coordinator.NewEntries(models.KindRevenue, store, store, bookLedger, ids, publisher)
	users := coordinator.NewUsers(store, expenses, revenues, views, publisher, cfg.CascadeWorkers)

	userHandler := handler.NewUserHandler(users)
	expenseHandler := handler.NewEntryHandler(expenses, models.KindExpense)
	revenueHandler := handler.NewEntryHandler(revenues, models.KindRevenue)

	router := gin.Default()
	router.Use(middleware.LoggingMiddleware())

	v1 := router.Group("/v1/users")
	{
		v1.POST("", userHandler.Create)
		v1.GET("", userHandler.List)
		v1.GET("/:userId", userHandler.Get)
		v1.PATCH("/:userId", userHandler.Update)
		v1.DELETE("/:userId", userHandler.Delete)

		registerEntryRoutes(v1.Group("/:userId/expenses"), expenseHandler)
		registerEntryRoutes(v1.Group("/:userId/revenues"), revenueHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Balance audit trail: consume ledger events and log every change.
	go func() {
		subscriber := events.NewSubscriber(redis, events.SubscriberConfig{
			Group:    "finance-master-audit",
			Consumer: "audit-1",
			Stream:   events.LedgerEventsStream,
		}, logBalanceChange)
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Audit subscriber stopped: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	log.Printf("Finance-Master starting on port %s", cfg.Port)
	if err := router.Run(cfg.HTTPAddress()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newRedisClient(cfg config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func registerEntryRoutes(group *gin.RouterGroup, h *handler.EntryHandler) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:entryId", h.Get)
	group.PATCH("/:entryId", h.Update)
	group.DELETE("/:entryId", h.Delete)
}

func logBalanceChange(ctx context.Context, event events.Event) error {
	if event.Type != events.BalanceUpdated {
		return nil
	}
	dataBytes, _ := json.Marshal(event.Data)
	var data events.BalanceUpdatedEvent
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		return err
	}
	log.Printf("audit: user %d balance changed by %s to %s",
		data.UserID, data.Change.String(), data.NewBalance.String())
	return nil
}
