package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	accountapp "github.com/wyfcoding/walletledger/internal/account/application"
	accountmysql "github.com/wyfcoding/walletledger/internal/account/infrastructure/persistence/mysql"
	accountredis "github.com/wyfcoding/walletledger/internal/account/infrastructure/persistence/redis"
	accounthttp "github.com/wyfcoding/walletledger/internal/account/interfaces/http"
	ledgerapp "github.com/wyfcoding/walletledger/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/internal/ledger/infrastructure/messaging"
	ledgermysql "github.com/wyfcoding/walletledger/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/wyfcoding/walletledger/internal/ledger/interfaces/http"
	settlementapp "github.com/wyfcoding/walletledger/internal/settlement/application"
	"github.com/wyfcoding/walletledger/internal/settlement/infrastructure/adapter"
	settlementmysql "github.com/wyfcoding/walletledger/internal/settlement/infrastructure/persistence/mysql"
	settlementhttp "github.com/wyfcoding/walletledger/internal/settlement/interfaces/http"
	"github.com/wyfcoding/walletledger/pkg/cache"
	"github.com/wyfcoding/walletledger/pkg/config"
	"github.com/wyfcoding/walletledger/pkg/db"
	"github.com/wyfcoding/walletledger/pkg/idgen"
	"github.com/wyfcoding/walletledger/pkg/logger"
	"github.com/wyfcoding/walletledger/pkg/metrics"
	"github.com/wyfcoding/walletledger/pkg/middleware"
	"github.com/wyfcoding/walletledger/pkg/mq"
	"github.com/wyfcoding/walletledger/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/ledger/config.toml", "config file path")

func main() {
	flag.Parse()
	ctx := context.Background()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	if err := idgen.Init(cfg.NodeID); err != nil {
		logger.Fatal(ctx, "failed to init id generator", "error", err)
	}

	// 3. 初始化指标
	metricsImpl := metrics.New(cfg.ServiceName)
	if err := metricsImpl.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal(ctx, "failed to register metrics", "error", err)
	}

	// 4. 初始化基础设施
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect database", "error", err)
	}
	defer func() { _ = database.Close() }()

	if cfg.Database.AutoMigrate {
		models := append(ledgermysql.Models(), accountmysql.Models()...)
		models = append(models, settlementmysql.Models()...)
		if err := database.AutoMigrate(models...); err != nil {
			logger.Fatal(ctx, "failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", "error", err)
	}
	defer func() { _ = redisCache.Close() }()

	// 5. 初始化仓储
	balances := ledgermysql.NewBalanceStore(database.DB)
	movements := ledgermysql.NewMovementLog(database.DB)
	outboxStore := ledgermysql.NewOutboxStore(database.DB)
	outboxPub := messaging.NewOutboxPublisher(outboxStore).WithTopic(ledgerdomain.TopicMovements, cfg.Ledger.MovementTopic)

	accountRepo := accountmysql.NewAccountRepository(database.DB)
	identityCache := accountredis.NewAccountRedisRepository(redisCache.GetClient(), time.Duration(cfg.Ledger.IdentityCacheTTL)*time.Second)
	obligationRepo := settlementmysql.NewObligationRepository(database.DB)

	// 6. 初始化应用服务
	engine := ledgerapp.NewTransferEngine(database, balances, movements, outboxPub, metricsImpl)
	queryService := ledgerapp.NewLedgerQueryService(balances, movements)
	accountService := accountapp.NewAccountService(database, accountRepo, identityCache, balances)
	settlementService := settlementapp.NewSettlementService(
		database,
		obligationRepo,
		adapter.NewLedgerPaymentAdapter(engine),
		accountService,
		accountService,
		metricsImpl,
	)

	// 7. 初始化接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(metricsImpl))
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		r.Use(middleware.RateLimitMiddleware(limiter, ratelimit.PerSecond(cfg.RateLimit.Rate, cfg.RateLimit.Burst), middleware.AccountKey))
	}
	r.Use(middleware.Idempotency(redisCache, time.Duration(cfg.Ledger.IdempotencyTTL)*time.Second))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	ledgerhttp.NewLedgerHandler(engine, queryService, accountService).RegisterRoutes(r)
	accounthttp.NewAccountHandler(accountService).RegisterRoutes(r)
	settlementhttp.NewSettlementHandler(settlementService).RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, prometheus.DefaultGatherer)
	}

	// 8. 启动服务
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info(gctx, "metrics server starting", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   3,
			RetryBackoff: 100,
			WriteTimeout: 5000,
		})
		defer func() { _ = producer.Close() }()

		relay := messaging.NewRelay(outboxStore, producer, mq.NewDeadLetterQueue(producer, cfg.Ledger.DeadLetterTopic), metricsImpl, messaging.RelayConfig{
			PollInterval: cfg.Ledger.PollInterval(),
			BatchSize:    cfg.Ledger.OutboxBatchSize,
			MaxAttempts:  cfg.Ledger.OutboxMaxAttempts,
		})
		g.Go(func() error {
			logger.Info(gctx, "outbox relay starting", "brokers", cfg.Kafka.Brokers)
			return relay.Run(gctx)
		})
	} else {
		logger.Warn(ctx, "kafka disabled, movement events stay in the outbox")
	}

	// 9. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(ctx, "metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "server stopped")
}
