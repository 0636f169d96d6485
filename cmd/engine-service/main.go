package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/gateway"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/redis"
	ws "auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting Auction Engine Service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize MySQL
	db := utils.InitializeMySQL(ctx, cfg, log)
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}()

	// Repositories
	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	bidRepo := mysql.NewMySQLBidRepository(db)
	orderRepo := mysql.NewMySQLOrderRepository(db)
	notificationRepo := mysql.NewMySQLNotificationRepository(db)

	// Redis based components
	stateCache := redis.NewRedisStateCache(rdb)
	eventPublisher := redis.NewEventPublisher(rdb)
	eventSubscriber := redis.NewRedisEventSubscriber(rdb, log)
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)

	// Payment gateway client
	checkoutClient := gateway.NewCheckoutClient(cfg.Gateway.BaseURL, cfg.Gateway.Secret, cfg.Gateway.Timeout, log)

	// WebSocket connection registry and notification fan-out
	connManager := ws.NewConnectionManager(log)
	notifier := services.NewFanoutNotifier(notificationRepo, connManager, eventPublisher, log)

	// Services
	settlementService := services.NewSettlementService(
		orderRepo,
		auctionRepo,
		checkoutClient,
		notifier,
		eventPublisher,
		services.CheckoutOptions{
			Currency:   cfg.Gateway.Currency,
			SuccessURL: cfg.Gateway.SuccessURL,
			CancelURL:  cfg.Gateway.CancelURL,
		},
		log,
	)
	auctionService := services.NewAuctionService(auctionRepo, bidRepo, stateCache, log)
	bidService := services.NewBidService(auctionRepo, stateCache, notifier, eventPublisher, settlementService, log)
	closerService := services.NewCloserService(auctionRepo, bidRepo, settlementService, stateCache, notifier, eventPublisher, log)
	reconcilerService := services.NewReconcilerService(
		orderRepo,
		notifier,
		eventPublisher,
		cfg.Reconcile.LookupRetries,
		cfg.Reconcile.LookupDelay,
		log,
	)
	sweeper, err := services.NewSweeper(
		auctionService,
		closerService,
		settlementService,
		leaderElection,
		cfg.Instance.ID,
		cfg.Sweep.Interval,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize sweeper", "error", err)
		os.Exit(1)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","host":"${host}","method":"${method}","uri":"${uri}","user_agent":"${user_agent}","status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			echo.GET, echo.HEAD, echo.PUT, echo.PATCH,
			echo.POST, echo.DELETE, echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			echo.HeaderXRequestedWith,
		},
	}))

	// Handlers
	auctionHandler := handlers.NewAuctionHandler(auctionService, log)
	bidHandler := handlers.NewBidHandler(bidService, log)
	orderHandler := handlers.NewOrderHandler(settlementService, log)
	webhookHandler := handlers.NewWebhookHandler(reconcilerService, cfg.Gateway.WebhookSecret, log)
	wsHandler := handlers.NewWebSocketHandler(connManager, log)

	// API routes
	api := e.Group("/api/v1")
	api.POST("/auctions", auctionHandler.CreateAuction)
	api.GET("/auctions/:id", auctionHandler.GetAuction)
	api.GET("/auctions/:id/bids", auctionHandler.GetBidHistory)
	api.POST("/auctions/:id/bids", bidHandler.PlaceBid)
	api.POST("/auctions/:id/buy-now", bidHandler.BuyNow)
	api.GET("/orders/:id", orderHandler.GetOrder)
	api.POST("/webhooks/gateway", webhookHandler.HandleGatewayEvent)

	e.GET("/ws", wsHandler.HandleConnection)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-engine",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Relay engine events to websocket subscribers of the affected
	// auction. Other instances see bids this instance accepted through
	// the same channel.
	subscriberCtx, stopSubscriber := context.WithCancel(context.Background())
	defer stopSubscriber()
	go func() {
		err := eventSubscriber.SubscribeToEngineEvents(subscriberCtx, func(event *domain.EngineEvent) error {
			if event.AuctionID == "" {
				return nil
			}
			return connManager.BroadcastToAuction(event.AuctionID, event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Engine event subscription ended", "error", err)
		}
	}()

	// Keep contending for the sweep leadership; on leader failure the TTL
	// expires and another instance wins the next round.
	go func() {
		for {
			became, err := leaderElection.BecomeLeader(context.Background(), cfg.Instance.ID)
			if err != nil {
				log.Error("Failed to attempt leadership", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if became {
				log.Info("Became sweep leader", "instance_id", cfg.Instance.ID)
			}
			time.Sleep(10 * time.Second)
		}
	}()

	sweeper.Start()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting engine server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down engine service")

	sweeper.Stop()
	stopSubscriber()

	if err := leaderElection.ReleaseLeadership(context.Background(), cfg.Instance.ID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}

	log.Info("Engine service stopped")
}
