package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/broadcast"
	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/logger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	tabs   int
	ticks  int
	every  time.Duration
	policy string
	seed   int64
)

var rootCmd = &cobra.Command{
	Use:   "caresync-tabs",
	Short: "Simulate several tabs sharing one order ledger",
	Long: `Opens several ledger processes on one actor system, sharing an
in-memory store and broadcast channel, drives each with a tab actor that
places and advances orders, then reports whether the tabs converged.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(config.LogConfig{Level: "info", Encoding: "console", OutputPaths: []string{"stdout"}})
		if err != nil {
			return err
		}
		defer log.Sync()
		return simulate(log)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntVar(&tabs, "tabs", 3, "number of tabs")
	rootCmd.Flags().IntVar(&ticks, "ticks", 20, "actions per tab")
	rootCmd.Flags().DurationVar(&every, "every", 50*time.Millisecond, "delay between ticks")
	rootCmd.Flags().StringVar(&policy, "policy", string(ledger.PolicyLastWriterWins), "conflict policy")
	rootCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
}

func simulate(log *zap.Logger) error {
	if tabs < 1 {
		return fmt.Errorf("--tabs must be at least 1, got %d", tabs)
	}
	p, err := ledger.ParsePolicy(policy)
	if err != nil {
		return err
	}

	system := actor.NewActorSystem()
	backend := store.NewMemoryBackend()
	hub := broadcast.NewMemoryHub()

	ledgers := make([]*ledger.Ledger, 0, tabs)
	defer func() {
		for _, l := range ledgers {
			l.Close()
		}
	}()

	var pids []*actor.PID
	for i := 0; i < tabs; i++ {
		name := fmt.Sprintf("tab-%d", i+1)
		l, err := ledger.New(ledger.Options{
			Store:         store.NewOrderStore(backend.Session(), store.DefaultKeys(), time.Second, log),
			Channel:       hub.Open("caresync_orders_sync"),
			Defaults:      models.SeedOrders(),
			Policy:        p,
			StorageEvents: true,
			Origin:        name,
			Logger:        log,
			System:        system,
		})
		if err != nil {
			return err
		}
		ledgers = append(ledgers, l)

		tab := &TabActor{
			ledger: l,
			rand:   rand.New(rand.NewSource(seed + int64(i))),
			logger: log.Named(name),
		}
		pid, err := system.Root.SpawnNamed(actor.PropsFromProducer(func() actor.Actor { return tab }), name)
		if err != nil {
			return fmt.Errorf("failed to spawn %s: %w", name, err)
		}
		pids = append(pids, pid)
	}

	for n := 0; n < ticks; n++ {
		for _, pid := range pids {
			system.Root.Send(pid, &tick{})
		}
		time.Sleep(every)
	}

	for i, pid := range pids {
		res, err := system.Root.RequestFuture(pid, &getStats{}, 5*time.Second).Result()
		if err != nil {
			return err
		}
		stats := res.(*tabStats)
		log.Info("Tab finished",
			zap.String("tab", fmt.Sprintf("tab-%d", i+1)),
			zap.Int("placed", stats.Placed),
			zap.Int("advanced", stats.Advanced))
		if err := system.Root.PoisonFuture(pid).Wait(); err != nil {
			log.Warn("Failed to stop tab actor", zap.Error(err))
		}
	}

	for _, l := range ledgers {
		if _, err := l.Focus(); err != nil {
			return err
		}
	}

	reference, err := ledgers[0].Orders()
	if err != nil {
		return err
	}
	converged := true
	for _, l := range ledgers[1:] {
		orders, err := l.Orders()
		if err != nil {
			return err
		}
		if !sameOrders(reference, orders) {
			converged = false
			log.Warn("Tab diverged", zap.String("origin", l.Origin()), zap.Int("orders", len(orders)))
		}
	}

	log.Info("Simulation finished",
		zap.Int("tabs", tabs),
		zap.Int("orders", len(reference)),
		zap.Bool("converged", converged))
	if !converged {
		return fmt.Errorf("tabs did not converge")
	}
	return nil
}

func sameOrders(a, b []models.Order) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Status != b[i].Status {
			return false
		}
	}
	return true
}
