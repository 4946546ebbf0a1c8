package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/discovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionSource lists registered ledger sessions.
type SessionSource interface {
	Discover(ctx context.Context, service string) ([]*discovery.Session, error)
}

// PeerStatus is a registered session with its probed health.
type PeerStatus struct {
	discovery.Session
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Prober checks the gRPC health endpoint of every registered peer.
type Prober struct {
	source  SessionSource
	service string
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(source SessionSource, service string, timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		source:  source,
		service: service,
		timeout: timeout,
		logger:  logger.Named("prober"),
	}
}

// Probe returns the serving status reported by the health server at addr.
func (p *Prober) Probe(ctx context.Context, addr string) (string, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: LedgerService})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}

// Peers probes every session registered for the service.
func (p *Prober) Peers(ctx context.Context) ([]PeerStatus, error) {
	sessions, err := p.source.Discover(ctx, p.service)
	if err != nil {
		return nil, err
	}

	peers := make([]PeerStatus, 0, len(sessions))
	for _, s := range sessions {
		peer := PeerStatus{Session: *s}
		status, err := p.Probe(ctx, s.GRPCAddr)
		if err != nil {
			p.logger.Debug("Peer probe failed", zap.String("origin", s.Origin), zap.Error(err))
			peer.Status = "UNREACHABLE"
			peer.Error = err.Error()
		} else {
			peer.Status = status
		}
		peers = append(peers, peer)
	}
	return peers, nil
}
