package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

func NewEtcdClient(cfg *config.EtcdConfig) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return cli, nil
}

// EtcdRepository stores ledger entries under <prefix>ledger/<key>.
type EtcdRepository struct {
	client    *clientv3.Client
	namespace string
	logger    *zap.Logger

	mu      sync.Mutex
	watched map[string]int
	revs    map[string]map[int64]struct{}
}

func NewEtcdRepository(client *clientv3.Client, prefix string, logger *zap.Logger) *EtcdRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRepository{
		client:    client,
		namespace: prefix + "ledger/",
		logger:    logger.Named("etcd"),
		watched:   make(map[string]int),
		revs:      make(map[string]map[int64]struct{}),
	}
}

func (e *EtcdRepository) path(key string) string {
	return e.namespace + key
}

func (e *EtcdRepository) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := e.client.Get(ctx, e.path(key))
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (e *EtcdRepository) Set(ctx context.Context, key, value string) error {
	resp, err := e.client.Put(ctx, e.path(key), value)
	if err != nil {
		return err
	}
	e.record(key, resp.Header.Revision)
	return nil
}

// record remembers rev as this repository's write to key. Only watched
// keys are tracked; nothing would ever consume the others.
func (e *EtcdRepository) record(key string, rev int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watched[key] == 0 {
		return
	}
	revs := e.revs[key]
	if revs == nil {
		revs = make(map[int64]struct{})
		e.revs[key] = revs
	}
	revs[rev] = struct{}{}
}

// own reports whether rev of key was produced by this repository's Set.
// Events for a key arrive in revision order, so every recorded revision
// up to rev is forgotten.
func (e *EtcdRepository) own(key string, rev int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	revs := e.revs[key]
	_, ok := revs[rev]
	for r := range revs {
		if r <= rev {
			delete(revs, r)
		}
	}
	return ok
}

func (e *EtcdRepository) watch(key string) {
	e.mu.Lock()
	e.watched[key]++
	e.mu.Unlock()
}

func (e *EtcdRepository) unwatch(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watched[key]--; e.watched[key] <= 0 {
		delete(e.watched, key)
		delete(e.revs, key)
	}
}

func (e *EtcdRepository) Watch(ctx context.Context, keys ...string) (<-chan store.Change, error) {
	out := make(chan store.Change, 16)

	var wg sync.WaitGroup
	for _, key := range keys {
		e.watch(key)
		wch := e.client.Watch(ctx, e.path(key))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.unwatch(key)
			for resp := range wch {
				if err := resp.Err(); err != nil {
					e.logger.Warn("Watch error", zap.String("key", key), zap.Error(err))
					continue
				}
				for _, ev := range resp.Events {
					if e.own(key, ev.Kv.ModRevision) {
						continue
					}
					change := store.Change{Key: strings.TrimPrefix(string(ev.Kv.Key), e.namespace)}
					if ev.Type == clientv3.EventTypeDelete {
						change.Deleted = true
					} else {
						change.Value = string(ev.Kv.Value)
					}
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}
