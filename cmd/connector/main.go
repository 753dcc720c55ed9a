package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/xela07ax/atlas-chatops/internal/connectors"
	"github.com/xela07ax/atlas-chatops/internal/infra"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Дев-коннектор платформы: обслуживает операции исполнения из зашитых
// фикстур. В проде на его месте стоит настоящий коннектор к Atlas API,
// контракт транспорта тот же.
func main() {
	cfg, _, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	addr := cfg.Engine.ConnectorAddr
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", addr), zap.Error(err))
	}

	grpcSrv := grpc.NewServer()
	srv := connectors.NewServer(connectors.NewMockAtlasConnector(), cfg.Auth, logger)
	srv.Register(grpcSrv)

	go func() {
		logger.Info("mock atlas connector started", zap.String("addr", addr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Fatal("grpc serve failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("mock atlas connector stopping...")
	grpcSrv.GracefulStop()
	logger.Info("mock atlas connector exited properly")
}
