package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Registry announces running ledger processes under
// <prefix>sessions/<service>/<origin> with a leased key.
type Registry struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	lease clientv3.LeaseID
}

// Session is one registered ledger process.
type Session struct {
	Service   string    `json:"service"`
	Origin    string    `json:"origin"`
	GRPCAddr  string    `json:"grpcAddr"`
	HTTPAddr  string    `json:"httpAddr"`
	Backend   string    `json:"backend"`
	StartedAt time.Time `json:"startedAt"`
}

func NewRegistry(client *clientv3.Client, cfg *config.EtcdConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client: client,
		config: cfg,
		logger: logger.Named("discovery"),
	}
}

func (r *Registry) servicePrefix(service string) string {
	return fmt.Sprintf("%ssessions/%s/", r.config.Prefix, service)
}

func (r *Registry) sessionKey(s *Session) string {
	return r.servicePrefix(s.Service) + s.Origin
}

// Register puts the session under a lease kept alive until ctx ends or
// Deregister is called.
func (r *Registry) Register(ctx context.Context, s *Session) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := r.config.LeaseTTL
	if ttl <= 0 {
		ttl = 30
	}
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if _, err = r.client.Put(ctx, r.sessionKey(s), string(value), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	ch, kaerr := r.client.KeepAlive(ctx, lease.ID)
	if kaerr != nil {
		return fmt.Errorf("failed to keep alive: %w", kaerr)
	}
	r.lease = lease.ID

	go func() {
		for range ch {
		}
		r.logger.Info("Session lease keep-alive ended", zap.String("origin", s.Origin))
	}()

	r.logger.Info("Registered ledger session",
		zap.String("service", s.Service),
		zap.String("origin", s.Origin),
		zap.String("grpc", s.GRPCAddr))
	return nil
}

// Discover lists the sessions of service, oldest first.
func (r *Registry) Discover(ctx context.Context, service string) ([]*Session, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover sessions: %w", err)
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeSessions(values, r.logger), nil
}

func decodeSessions(values [][]byte, logger *zap.Logger) []*Session {
	sessions := make([]*Session, 0, len(values))
	for _, v := range values {
		var s Session
		if err := json.Unmarshal(v, &s); err != nil {
			logger.Warn("Skipping malformed session entry", zap.Error(err))
			continue
		}
		sessions = append(sessions, &s)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return strings.Compare(sessions[i].Origin, sessions[j].Origin) < 0
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

func (r *Registry) Deregister(ctx context.Context, s *Session) error {
	if _, err := r.client.Delete(ctx, r.sessionKey(s)); err != nil {
		return fmt.Errorf("failed to deregister session: %w", err)
	}
	if r.lease != 0 {
		if _, err := r.client.Revoke(ctx, r.lease); err != nil {
			r.logger.Warn("Failed to revoke lease", zap.Error(err))
		}
		r.lease = 0
	}
	return nil
}
