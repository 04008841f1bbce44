package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/config"
	"github.com/algariis/polymarket-trading-bot/handlers"
	"github.com/algariis/polymarket-trading-bot/middleware"
	"github.com/algariis/polymarket-trading-bot/storage"
	"github.com/algariis/polymarket-trading-bot/syncer"
)

func main() {
	log.Println("[Main] Starting copy-trading daemon...")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("[Main] No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}
	if !middleware.IsValidAddress(cfg.TargetUser) {
		log.Fatalf("[Main] TARGET_USER_ADDRESS %q is not a valid Ethereum address", cfg.TargetUser)
	}
	if !middleware.IsValidAddress(cfg.ProxyWallet) {
		log.Fatalf("[Main] PROXY_WALLET %q is not a valid Ethereum address", cfg.ProxyWallet)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when configured, in-memory otherwise.
	var store storage.Store
	var pgStore *storage.PostgresStore
	if os.Getenv("POSTGRES_HOST") != "" {
		pgStore, err = storage.NewPostgres(ctx, cfg.PostgresURL(), cfg.RedisAddr(), cfg.RedisPassword)
		if err != nil {
			log.Fatalf("[Main] Failed to init storage: %v", err)
		}
		store = pgStore
		log.Println("[Main] Using Postgres audit trail")
	} else {
		store = storage.NewMemory()
		log.Println("[Main] POSTGRES_HOST not set, audit trail is in-memory only")
	}
	defer store.Close()

	// Trading clients
	auth, err := api.NewAuth(cfg.PrivateKey)
	if err != nil {
		log.Fatalf("[Main] Failed to load signing key: %v", err)
	}
	clob, err := api.NewClobClient(cfg.ClobURL, auth)
	if err != nil {
		log.Fatalf("[Main] Failed to create CLOB client: %v", err)
	}
	clob.SetFunder(cfg.ProxyWallet)
	if cfg.ProxyWallet != auth.GetAddress().Hex() {
		// Funds held in a Polymarket profile wallet, not the signing EOA.
		clob.SetSignatureType(1)
	}
	if _, err := clob.DeriveAPICreds(ctx); err != nil {
		log.Fatalf("[Main] Failed to derive API credentials: %v", err)
	}
	log.Printf("[Main] Trading as %s (funder %s)", auth.GetAddress().Hex(), cfg.ProxyWallet)

	data := api.NewDataClient(cfg.DataURL)

	// Pipeline
	metrics := syncer.NewMetrics()
	queue := syncer.NewPendingQueue(cfg.QueueCapacity)
	processed := syncer.NewProcessedSet()

	engine := syncer.NewEngine(clob, cfg.RetryLimit, cfg.SlippageTolerance, cfg.SettleDelay, cfg.RetryDelay)
	dispatcher := syncer.NewDispatcher(queue, engine, clob, data, store, metrics, cfg.TargetUser, cfg.ProxyWallet)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	monitor := syncer.NewTradeMonitor(data, queue, processed, store, metrics,
		cfg.TargetUser, cfg.FetchInterval, cfg.TooOld)
	if cfg.EnableLiveWS {
		monitor.EnableLiveFeed()
	}
	if err := monitor.Start(ctx); err != nil {
		log.Fatalf("[Main] Failed to start monitor: %v", err)
	}
	defer monitor.Stop()

	if pgStore != nil {
		syncer.NewMetricsStore(pgStore.Redis()).StartPublisher(ctx, metrics, 30*time.Second)
	}

	// Status API
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	h := handlers.NewHandler(cfg, store, metrics, queue, data)

	r.GET("/healthz", h.Health)
	authed := r.Group("/api", middleware.BasicAuth())
	{
		authed.GET("/metrics", h.GetMetrics)
		authed.GET("/executions", h.GetExecutions)
		authed.GET("/positions/:address", middleware.ValidateAddress(), h.GetPositions)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.Printf("[Main] Status API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Main] Status API error: %v", err)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("[Main] Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] Status API shutdown error: %v", err)
	}
	cancel()
}
