package grpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/discovery"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHealthServer(t *testing.T) (*HealthServer, string) {
	t.Helper()
	s := NewHealthServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	addr, err := s.Listen()
	require.NoError(t, err)
	go s.Serve()
	t.Cleanup(s.Stop)
	return s, addr
}

type fakeChecker struct {
	failing atomic.Bool
}

func (f *fakeChecker) Info() (ledger.Info, error) {
	if f.failing.Load() {
		return ledger.Info{}, errors.New("mailbox timeout")
	}
	return ledger.Info{Origin: "tab-a"}, nil
}

type fakeSource []*discovery.Session

func (f fakeSource) Discover(context.Context, string) ([]*discovery.Session, error) {
	return f, nil
}

func TestHealthServerStatus(t *testing.T) {
	s, addr := startHealthServer(t)
	p := NewProber(nil, "ledger", time.Second, nil)
	ctx := context.Background()

	status, err := p.Probe(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", status)

	s.SetServing(true)
	status, err = p.Probe(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "SERVING", status)
}

func TestMonitorMirrorsLedger(t *testing.T) {
	s, addr := startHealthServer(t)
	p := NewProber(nil, "ledger", time.Second, nil)

	checker := &fakeChecker{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Monitor(ctx, checker, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		status, err := p.Probe(context.Background(), addr)
		return err == nil && status == "SERVING"
	}, 2*time.Second, 20*time.Millisecond)

	checker.failing.Store(true)
	require.Eventually(t, func() bool {
		status, err := p.Probe(context.Background(), addr)
		return err == nil && status == "NOT_SERVING"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPeers(t *testing.T) {
	s, addr := startHealthServer(t)
	s.SetServing(true)

	source := fakeSource{
		{Service: "ledger", Origin: "tab-a", GRPCAddr: addr},
		{Service: "ledger", Origin: "tab-b", GRPCAddr: "127.0.0.1:1"},
	}
	p := NewProber(source, "ledger", 500*time.Millisecond, nil)

	peers, err := p.Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "tab-a", peers[0].Origin)
	assert.Equal(t, "SERVING", peers[0].Status)
	assert.Equal(t, "UNREACHABLE", peers[1].Status)
	assert.NotEmpty(t, peers[1].Error)
}
