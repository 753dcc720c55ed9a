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

	"github.com/xela07ax/atlas-chatops/internal/audit"
	"github.com/xela07ax/atlas-chatops/internal/bot"
	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/engine"
	"github.com/xela07ax/atlas-chatops/internal/extractor"
	"github.com/xela07ax/atlas-chatops/internal/formatter"
	"github.com/xela07ax/atlas-chatops/internal/infra"
	"github.com/xela07ax/atlas-chatops/internal/llm"
	"github.com/xela07ax/atlas-chatops/internal/notifier"
	"github.com/xela07ax/atlas-chatops/internal/policy"
	"github.com/xela07ax/atlas-chatops/internal/repository/postgres"
	"github.com/xela07ax/atlas-chatops/internal/roster"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, v, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Реестр правил обязан покрывать весь словарь интентов, иначе не стартуем
	if err := policy.Validate(); err != nil {
		logger.Fatal("policy registry is incomplete", zap.Error(err))
	}

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Redis (reload-сигналы, алерты) и Postgres (аудит)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required for the audit trail")
	}
	auditRepo := postgres.NewAuditRepo(cfg.Database.URL, cfg.Database.MaxConns)
	defer auditRepo.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := auditRepo.Ping(pingCtx); err != nil {
		logger.Fatal("postgres is unreachable", zap.Error(err))
	}
	pingCancel()

	trail := audit.NewTrail(auditRepo, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval, logger)
	trail.Start()
	defer trail.Stop()

	// 3. Ростер: снапшот из конфига + горячая перезагрузка (файл и Redis)
	rosterMgr := roster.NewManager(cfg.RBAC, v, rdb, logger)
	rosterMgr.WatchFile()
	if rdb != nil {
		go rosterMgr.StartListener(appCtx)
	}

	// 4. Слой исполнения: коннектор + защита (retries, CB, rate limit)
	var provider connectors.ExecutionProvider
	switch cfg.Engine.ConnectorMode {
	case "mock":
		logger.Warn("running with the mock connector, no real platform calls will be made")
		provider = connectors.NewMockAtlasConnector()
	default:
		conn, err := grpc.NewClient(cfg.Engine.ConnectorAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to connect to connector", zap.Error(err))
		}
		defer conn.Close()
		provider = connectors.NewGRPCAdapter(conn, cfg.Auth)
	}
	safeExecutor := engine.NewReliabilityWrapper(provider, cfg.Engine)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Следим за заполненностью аудит-буфера
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.AuditBufferFill.Set(float64(trail.Pending()))
			case <-appCtx.Done():
				return
			}
		}
	}()

	// 5. Сборка конвейера
	var assist *llm.Client
	if cfg.Assistant.Enabled {
		assist = llm.NewClient(cfg.Assistant, logger)
	}

	var extractorAssist extractor.Assist
	var polisher formatter.Polisher
	if assist != nil {
		extractorAssist = assist
		polisher = assist
	}

	// Метрики обычно живут на отдельном порту, чтобы не светить их наружу
	// вместе с вебхуком; без metrics_port отдаем /metrics на основном порту
	srvReg := reg
	if cfg.Server.MetricsPort > 0 {
		srvReg = nil
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
			logger.Info("metrics endpoint started", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	core := bot.NewCore(
		rosterMgr,
		extractor.New(extractorAssist, logger),
		policy.NewEngine(logger),
		engine.NewDispatcher(safeExecutor, logger),
		formatter.New(polisher, logger),
		trail,
		notifier.NewAdminNotifier(rdb, cfg.RBAC.NotifyAdminOnDenied, logger),
		metrics,
		cfg.RBAC.LogAccessAttempts,
		logger,
	)

	server := bot.NewServer(core, srvReg, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("chatops bot started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("chatops bot stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("chatops bot exited properly")
}
