package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// LedgerService is the health service name of a ledger process.
const LedgerService = "caresync.ledger"

// Checker is the part of a ledger the health server probes.
type Checker interface {
	Info() (ledger.Info, error)
}

// HealthServer exposes grpc.health.v1 for one ledger process so peers
// and orchestrators can tell whether its actor still answers.
type HealthServer struct {
	config *config.ServerConfig
	logger *zap.Logger
	health *health.Server
	srv    *grpc.Server
	lis    net.Listener
}

func NewHealthServer(cfg *config.ServerConfig, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		config: cfg,
		logger: logger.Named("grpc"),
		health: hs,
		srv:    srv,
	}
}

// Listen binds the configured address and returns the bound one, which
// differs when the port is 0.
func (s *HealthServer) Listen() (string, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	s.lis = lis
	return lis.Addr().String(), nil
}

func (s *HealthServer) Serve() error {
	if s.lis == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("Health service started", zap.String("address", s.lis.Addr().String()))
	return s.srv.Serve(s.lis)
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(LedgerService, status)
	s.health.SetServingStatus("", status)
}

// Monitor polls the ledger and mirrors its liveness until ctx ends.
func (s *HealthServer) Monitor(ctx context.Context, l Checker, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	check := func() {
		_, err := l.Info()
		if err != nil {
			s.logger.Warn("Ledger did not answer health check", zap.Error(err))
		}
		s.SetServing(err == nil)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
