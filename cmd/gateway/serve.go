package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/gateway"
	"github.com/Vinayak0987/CareSync-sub001/pkg/bootstrap"
	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/discovery"
	ledgergrpc "github.com/Vinayak0987/CareSync-sub001/pkg/grpc"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var healthInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a ledger process with its HTTP gateway",
	Long: `Starts a ledger process. The HTTP gateway serves the order operations,
the gRPC endpoint reports health, and the ledger resyncs from the store on
the configured refresh interval. With etcd enabled the process registers
its session so that peers can list it.

Shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&healthInterval, "health-interval", 2*time.Second, "how often the gRPC health status is refreshed")
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	rt, cleanup, err := bootstrap.Init(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := rt.LedgerOptions()
	if err != nil {
		return err
	}
	l, err := ledger.New(opts)
	if err != nil {
		return err
	}
	defer l.Close()

	log.Info("Ledger process started",
		zap.String("origin", l.Origin()),
		zap.String("backend", cfg.Ledger.Backend),
		zap.String("broadcast", cfg.Ledger.Broadcast),
		zap.String("policy", cfg.Ledger.ConflictPolicy))

	health := ledgergrpc.NewHealthServer(&cfg.Server, log)
	grpcAddr, err := health.Listen()
	if err != nil {
		return err
	}

	var (
		registry *discovery.Registry
		peers    gateway.Peers
	)
	if rt.Etcd != nil && cfg.Etcd.Enabled {
		registry = discovery.NewRegistry(rt.Etcd, &cfg.Etcd, log)
		peers = ledgergrpc.NewProber(registry, cfg.Server.Name, 0, log)
	}

	gw := gateway.NewGateway(cfg, log, l, peers)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.Run(ctx)
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- health.Serve() }()
		go health.Monitor(ctx, l, healthInterval)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			health.Stop()
			return nil
		}
	})

	if cfg.Ledger.RefreshInterval > 0 {
		g.Go(func() error {
			return runRefresh(ctx, l, cfg.Ledger.RefreshInterval, log)
		})
	}

	if registry != nil {
		session := &discovery.Session{
			Service:   cfg.Server.Name,
			Origin:    l.Origin(),
			GRPCAddr:  grpcAddr,
			HTTPAddr:  fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
			Backend:   cfg.Ledger.Backend,
			StartedAt: time.Now().UTC(),
		}
		if err := registry.Register(ctx, session); err != nil {
			log.Warn("Failed to register session, continuing without discovery", zap.Error(err))
		} else {
			defer func() {
				deregCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := registry.Deregister(deregCtx, session); err != nil {
					log.Warn("Failed to deregister session", zap.Error(err))
				}
			}()
		}
	}

	if err := g.Wait(); err != nil {
		log.Error("Ledger process error", zap.Error(err))
		return err
	}

	log.Info("Ledger process stopped")
	return nil
}

// runRefresh resyncs the ledger from the store on a fixed interval, which
// covers backends without change notifications.
func runRefresh(ctx context.Context, l *ledger.Ledger, every time.Duration, log *zap.Logger) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			adopted, err := l.Refresh()
			if err != nil {
				log.Warn("Scheduled refresh failed", zap.Error(err))
				return
			}
			if adopted {
				log.Debug("Scheduled refresh adopted stored orders")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	<-ctx.Done()
	return scheduler.Shutdown()
}
