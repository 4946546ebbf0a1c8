package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"go.uber.org/zap"
)

// Keys names the entries the ledger keeps in a backend.
type Keys struct {
	Orders  string
	Counter string
	Version string
}

func DefaultKeys() Keys {
	return Keys{
		Orders:  "caresync_orders",
		Counter: "caresync_order_counter",
		Version: "caresync_orders_version",
	}
}

var errNullList = errors.New("stored order list is null")

// OrderStore persists the order list and the id counter. None of its
// methods fail: errors are logged and a usable value is returned.
type OrderStore struct {
	backend Backend
	keys    Keys
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrderStore(backend Backend, keys Keys, timeout time.Duration, logger *zap.Logger) *OrderStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStore{
		backend: backend,
		keys:    keys,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *OrderStore) Keys() Keys {
	return s.keys
}

func (s *OrderStore) Backend() Backend {
	return s.backend
}

// Raw returns the serialized order list as stored, "" when absent.
func (s *OrderStore) Raw(ctx context.Context) string {
	raw, _ := s.get(ctx, s.keys.Orders)
	return raw
}

// Load returns the stored order list, or defaults when the entry is
// missing or cannot be decoded.
func (s *OrderStore) Load(ctx context.Context, defaults []models.Order) []models.Order {
	raw, found := s.get(ctx, s.keys.Orders)
	if !found {
		return models.CloneOrders(defaults)
	}

	orders, err := DecodeOrders(raw)
	if err != nil {
		s.logger.Warn("Failed to decode stored orders, using defaults",
			zap.String("key", s.keys.Orders),
			zap.Error(err))
		return models.CloneOrders(defaults)
	}
	return orders
}

// LoadCounter returns the stored next sequence, or len(defaults)+1 when
// the entry is missing, unparseable or not positive.
func (s *OrderStore) LoadCounter(ctx context.Context, defaults []models.Order) int {
	fallback := len(defaults) + 1

	raw, found := s.get(ctx, s.keys.Counter)
	if !found {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		s.logger.Warn("Failed to parse stored counter, using default",
			zap.String("key", s.keys.Counter),
			zap.String("value", raw),
			zap.Int("default", fallback))
		return fallback
	}
	return n
}

// Stamp identifies the snapshot last written to the order list: its
// version and the origin of the process that wrote it.
type Stamp struct {
	Version int64  `json:"version"`
	Origin  string `json:"origin,omitempty"`
}

// String is the stored form, "<version>:<origin>" or "<version>" when the
// origin is unknown.
func (st Stamp) String() string {
	v := strconv.FormatInt(st.Version, 10)
	if st.Origin == "" {
		return v
	}
	return v + ":" + st.Origin
}

// ParseStamp reads the stored form of a stamp.
func ParseStamp(raw string) (Stamp, error) {
	version, origin, _ := strings.Cut(strings.TrimSpace(raw), ":")
	n, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return Stamp{}, fmt.Errorf("invalid stamp %q: %w", raw, err)
	}
	return Stamp{Version: n, Origin: origin}, nil
}

// LoadStamp returns the stored snapshot stamp, the zero stamp when absent.
func (s *OrderStore) LoadStamp(ctx context.Context) Stamp {
	raw, found := s.get(ctx, s.keys.Version)
	if !found {
		return Stamp{}
	}
	st, err := ParseStamp(raw)
	if err != nil {
		s.logger.Warn("Failed to parse stored version",
			zap.String("key", s.keys.Version),
			zap.String("value", raw))
		return Stamp{}
	}
	return st
}

// Save overwrites the full order list.
func (s *OrderStore) Save(ctx context.Context, orders []models.Order) {
	raw, err := EncodeOrders(orders)
	if err != nil {
		s.logger.Error("Failed to encode orders", zap.Int("count", len(orders)), zap.Error(err))
		return
	}
	s.set(ctx, s.keys.Orders, raw)
}

func (s *OrderStore) SaveCounter(ctx context.Context, n int) {
	s.set(ctx, s.keys.Counter, strconv.Itoa(n))
}

func (s *OrderStore) SaveStamp(ctx context.Context, st Stamp) {
	s.set(ctx, s.keys.Version, st.String())
}

func (s *OrderStore) get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read ledger entry", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return raw, found
}

func (s *OrderStore) set(ctx context.Context, key, value string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.backend.Set(ctx, key, value); err != nil {
		s.logger.Error("Failed to write ledger entry", zap.String("key", key), zap.Error(err))
	}
}

// EncodeOrders is the canonical serialization used for storage and for
// change detection. A nil list encodes as "[]".
func EncodeOrders(orders []models.Order) (string, error) {
	if orders == nil {
		orders = []models.Order{}
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func DecodeOrders(raw string) ([]models.Order, error) {
	var orders []models.Order
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		return nil, errNullList
	}
	return orders, nil
}
