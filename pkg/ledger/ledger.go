// Package ledger implements the shared order ledger. Each Ledger is one
// ledger process: an actor owning an in-memory order list that it keeps in
// step with other processes through a store, a broadcast channel, storage
// change notifications and resyncs.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/broadcast"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUnknownOrder      = errors.New("unknown order")
	ErrIllegalTransition = errors.New("illegal transition")
)

// Options configures a ledger process. Store is required.
type Options struct {
	Store   *store.OrderStore
	Channel broadcast.Channel

	// Defaults is the list used while the store holds none.
	Defaults []models.Order
	Policy   Policy
	// StorageEvents enables adoption on store change notifications.
	StorageEvents bool

	Location *time.Location
	Clock    func() time.Time

	// Origin identifies this process on broadcasts. Generated when empty.
	Origin         string
	RequestTimeout time.Duration

	Auditor Auditor
	Logger  *zap.Logger
	System  *actor.ActorSystem
}

// Info describes the state of one ledger process.
type Info struct {
	Origin       string `json:"origin"`
	Orders       int    `json:"orders"`
	NextSequence int    `json:"nextSequence"`
	Version      int64  `json:"version"`
	Policy       Policy `json:"policy"`
}

type Ledger struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	origin  string
	timeout time.Duration
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New spawns the ledger actor and waits until it has loaded the store and
// subscribed to its collaborators.
func New(opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyLastWriterWins
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.System == nil {
		opts.System = actor.NewActorSystem()
	}
	logger := opts.Logger.Named("ledger").With(zap.String("origin", opts.Origin))

	props := actor.PropsFromProducer(func() actor.Actor {
		return newLedgerActor(opts, logger)
	})
	pid, err := opts.System.Root.SpawnNamed(props, "ledger-"+opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn ledger actor: %w", err)
	}

	l := &Ledger{
		system:  opts.System,
		pid:     pid,
		origin:  opts.Origin,
		timeout: opts.RequestTimeout,
		logger:  logger,
	}
	if _, err := l.request(&ready{}); err != nil {
		opts.System.Root.Stop(pid)
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Origin() string {
	return l.origin
}

func (l *Ledger) request(msg interface{}) (interface{}, error) {
	res, err := l.system.Root.RequestFuture(l.pid, msg, l.timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger request %T: %w", msg, err)
	}
	return res, nil
}

func (l *Ledger) orderRequest(msg interface{}) (models.Order, bool, error) {
	res, err := l.request(msg)
	if err != nil {
		return models.Order{}, false, err
	}
	reply, ok := res.(*orderReply)
	if !ok {
		return models.Order{}, false, fmt.Errorf("unexpected reply %T", res)
	}
	return reply.Order, reply.Found, reply.Err
}

func (l *Ledger) ordersRequest(msg interface{}) ([]models.Order, error) {
	res, err := l.request(msg)
	if err != nil {
		return nil, err
	}
	reply, ok := res.(*ordersReply)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T", res)
	}
	return reply.Orders, nil
}

// AddOrder assigns the next id and the creation date, prepends the order
// and propagates the new list.
func (l *Ledger) AddOrder(draft models.OrderDraft) (models.Order, error) {
	order, _, err := l.orderRequest(&addOrder{Draft: draft})
	return order, err
}

// UpdateOrderStatus replaces the status of a known order without checking
// the transition. Unknown ids are ignored.
func (l *Ledger) UpdateOrderStatus(id string, status models.OrderStatus) error {
	_, _, err := l.orderRequest(&updateStatus{ID: id, Status: status})
	return err
}

// TransitionOrderStatus applies a validated transition. Rejections wrap
// ErrInvalidStatus, ErrUnknownOrder or ErrIllegalTransition.
func (l *Ledger) TransitionOrderStatus(id string, status models.OrderStatus) (models.Order, error) {
	order, _, err := l.orderRequest(&transitionStatus{ID: id, Status: status})
	return order, err
}

// AdvanceOrder moves an order to its next forward status.
func (l *Ledger) AdvanceOrder(id string) (models.Order, error) {
	order, _, err := l.orderRequest(&advanceOrder{ID: id})
	return order, err
}

func (l *Ledger) CancelOrder(id string) (models.Order, error) {
	return l.TransitionOrderStatus(id, models.StatusCancelled)
}

// Orders returns a copy of the current list, newest first.
func (l *Ledger) Orders() ([]models.Order, error) {
	return l.ordersRequest(&listOrders{})
}

func (l *Ledger) Order(id string) (models.Order, bool, error) {
	return l.orderRequest(&getOrder{ID: id})
}

// GetOrdersByOwner matches patientName exactly.
func (l *Ledger) GetOrdersByOwner(name string) ([]models.Order, error) {
	return l.ordersRequest(&ordersByOwner{Name: name})
}

func (l *Ledger) GetOrdersByOwnerID(patientID string) ([]models.Order, error) {
	return l.ordersRequest(&ordersByOwnerID{PatientID: patientID})
}

// Focus re-reads the store as a tab regaining the foreground does. It
// reports whether the stored list was adopted.
func (l *Ledger) Focus() (bool, error) {
	return l.resync("focus")
}

// Refresh is the periodic form of Focus.
func (l *Ledger) Refresh() (bool, error) {
	return l.resync("refresh")
}

func (l *Ledger) resync(reason string) (bool, error) {
	res, err := l.request(&resync{Reason: reason})
	if err != nil {
		return false, err
	}
	reply, ok := res.(*resyncReply)
	if !ok {
		return false, fmt.Errorf("unexpected reply %T", res)
	}
	return reply.Adopted, nil
}

func (l *Ledger) Info() (Info, error) {
	res, err := l.request(&getInfo{})
	if err != nil {
		return Info{}, err
	}
	info, ok := res.(*Info)
	if !ok {
		return Info{}, fmt.Errorf("unexpected reply %T", res)
	}
	return *info, nil
}

// Close stops the actor and releases its subscriptions.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.system.Root.PoisonFuture(l.pid).Wait()
	})
	return l.closeErr
}
