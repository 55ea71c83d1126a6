package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"groupbuy-backend/internal/auth"
	"groupbuy-backend/internal/cache"
	"groupbuy-backend/internal/client"
	"groupbuy-backend/internal/config"
	"groupbuy-backend/internal/logging"
	"groupbuy-backend/internal/repository"
	"groupbuy-backend/internal/server"
	"groupbuy-backend/internal/service"
	"groupbuy-backend/internal/worker"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg)

	db := client.InitDBClient(cfg.DatabaseURL)
	gateway := client.NewZarinpalClient(&cfg.Zarinpal)
	notifier := client.NewNotifier(&cfg.SMS)

	var resultCache cache.Cache
	if cfg.RedisAddr != "" {
		resultCache = cache.NewRedisCache(cfg.RedisAddr)
	} else {
		resultCache = cache.NewMemoryCache()
	}

	groupRepo := repository.NewGroupRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	intentRepo := repository.NewPaymentIntentRepository(db)

	if err := productRepo.Seed(context.Background()); err != nil {
		log.Fatal("seed products:", err)
	}

	settlementService := service.NewSettlementService(db, groupRepo, orderRepo, productRepo, resultCache)
	groupService := service.NewGroupService(db, groupRepo, orderRepo, productRepo, settlementService, notifier)
	paymentService := service.NewPaymentService(
		db, gateway, cfg.BaseURL,
		orderRepo, groupRepo, productRepo, intentRepo,
		groupService, settlementService,
	)

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)
	}

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(paymentService, settlementService, groupService, jwtManager)

	slog.Info("starting HTTP server", "addr", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	if cfg.Sweeper.Enabled {
		sweeper := worker.NewSweeper(groupService, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
		go sweeper.Run(sweepCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	slog.Info("signal received, starting graceful shutdown")

	sweepCancel()

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
