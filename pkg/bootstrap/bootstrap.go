package bootstrap

import (
	"context"
	"fmt"

	"github.com/Vinayak0987/CareSync-sub001/pkg/broadcast"
	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/repository"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Runtime holds the collaborators of one ledger process built from
// configuration.
type Runtime struct {
	Config  *config.Config
	Logger  *zap.Logger
	Origin  string
	Store   *store.OrderStore
	Channel broadcast.Channel
	Auditor *repository.MongoRepository
	Etcd    *clientv3.Client
}

// Init connects the configured backend, broadcast channel, audit trail
// and etcd client. The returned cleanup releases them in reverse order.
func Init(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, func(), error) {
	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Origin: uuid.NewString(),
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Runtime, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.Etcd.Enabled || cfg.Ledger.Backend == config.BackendEtcd {
		cli, err := repository.NewEtcdClient(&cfg.Etcd)
		if err != nil {
			return fail(err)
		}
		rt.Etcd = cli
		closers = append(closers, func() { _ = cli.Close() })
	}

	var redisRepo *repository.RedisRepository
	openRedis := func() (*repository.RedisRepository, error) {
		if redisRepo != nil {
			return redisRepo, nil
		}
		r := repository.NewRedisRepository(&cfg.Redis, logger)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() { _ = r.Close() })
		redisRepo = r
		return r, nil
	}

	var backend store.Backend
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		backend = store.NewMemoryBackend().Session()
	case config.BackendRedis:
		r, err := openRedis()
		if err != nil {
			return fail(err)
		}
		if cfg.Ledger.StorageEvents {
			if err := r.EnableKeyspaceEvents(ctx); err != nil {
				logger.Warn("Keyspace notifications unavailable, relying on broadcast and refresh", zap.Error(err))
			}
		}
		backend = r
	case config.BackendEtcd:
		backend = repository.NewEtcdRepository(rt.Etcd, cfg.Etcd.Prefix, logger)
	case config.BackendMySQL:
		m, err := repository.NewMySQLRepository(&cfg.MySQL, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = m.Close() })
		backend = m
	default:
		return fail(fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend))
	}

	rt.Store = store.NewOrderStore(backend, store.Keys{
		Orders:  cfg.Ledger.OrdersKey,
		Counter: cfg.Ledger.CounterKey,
		Version: cfg.Ledger.VersionKey,
	}, cfg.Ledger.StoreTimeout, logger)

	switch cfg.Ledger.Broadcast {
	case config.BackendMemory:
		rt.Channel = broadcast.NewMemoryHub().Open(cfg.Ledger.Channel)
	case config.BackendRedis:
		r, err := openRedis()
		if err != nil {
			return fail(err)
		}
		rt.Channel = broadcast.NewRedisChannel(r.Client(), cfg.Ledger.Channel, rt.Origin, logger)
	default:
		return fail(fmt.Errorf("unknown ledger broadcast %q", cfg.Ledger.Broadcast))
	}
	ch := rt.Channel
	closers = append(closers, func() { _ = ch.Close() })

	if cfg.MongoDB.URI != "" {
		m, err := repository.NewMongoRepository(&cfg.MongoDB, cfg.Server.Name)
		if err != nil {
			logger.Warn("Audit trail disabled", zap.Error(err))
		} else {
			rt.Auditor = m
			closers = append(closers, func() { _ = m.Close(context.Background()) })
		}
	}

	return rt, cleanup, nil
}

// LedgerOptions maps the runtime and ledger configuration to ledger
// options.
func (rt *Runtime) LedgerOptions() (ledger.Options, error) {
	policy, err := ledger.ParsePolicy(rt.Config.Ledger.ConflictPolicy)
	if err != nil {
		return ledger.Options{}, err
	}

	var defaults []models.Order
	if rt.Config.Ledger.Seed {
		defaults = models.SeedOrders()
	}

	opts := ledger.Options{
		Store:          rt.Store,
		Channel:        rt.Channel,
		Defaults:       defaults,
		Policy:         policy,
		StorageEvents:  rt.Config.Ledger.StorageEvents,
		Location:       rt.Config.Ledger.Location(),
		Origin:         rt.Origin,
		RequestTimeout: rt.Config.Ledger.RequestTimeout,
		Logger:         rt.Logger,
	}
	if rt.Auditor != nil {
		opts.Auditor = rt.Auditor
	}
	return opts, nil
}
