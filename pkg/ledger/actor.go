package ledger

import (
	"context"
	"fmt"

	"github.com/Vinayak0987/CareSync-sub001/pkg/broadcast"
	"github.com/Vinayak0987/CareSync-sub001/pkg/metrics"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Auditor records ledger mutations. Failures are logged, never returned.
type Auditor interface {
	Record(ctx context.Context, action, orderID string, data map[string]interface{}) error
}

const (
	ActionOrderCreated  = "order.created"
	ActionStatusUpdated = "order.status_updated"
)

// ledgerActor owns the order list. Everything touching orders, counter or
// stamp runs inside Receive.
type ledgerActor struct {
	opts   Options
	store  *store.OrderStore
	logger *zap.Logger

	orders  []models.Order
	raw     string
	counter int
	stamp   store.Stamp

	sub         broadcast.Subscription
	cancelWatch context.CancelFunc
}

func newLedgerActor(opts Options, logger *zap.Logger) *ledgerActor {
	return &ledgerActor{
		opts:   opts,
		store:  opts.Store,
		logger: logger,
	}
}

func (a *ledgerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.start(ctx)

	case *ready:
		ctx.Respond(a.info())

	case *addOrder:
		ctx.Respond(&orderReply{Order: a.addOrder(msg.Draft), Found: true})

	case *updateStatus:
		order, found := a.setStatus(msg.ID, msg.Status)
		ctx.Respond(&orderReply{Order: order, Found: found})

	case *transitionStatus:
		order, err := a.transition(msg.ID, msg.Status)
		ctx.Respond(&orderReply{Order: order, Found: err == nil, Err: err})

	case *advanceOrder:
		order, err := a.advance(msg.ID)
		ctx.Respond(&orderReply{Order: order, Found: err == nil, Err: err})

	case *listOrders:
		ctx.Respond(&ordersReply{Orders: models.CloneOrders(a.orders)})

	case *getOrder:
		i := a.indexOf(msg.ID)
		if i < 0 {
			ctx.Respond(&orderReply{})
			return
		}
		ctx.Respond(&orderReply{Order: models.CloneOrders(a.orders[i : i+1])[0], Found: true})

	case *ordersByOwner:
		ctx.Respond(&ordersReply{Orders: a.filter(func(o models.Order) bool { return o.PatientName == msg.Name })})

	case *ordersByOwnerID:
		ctx.Respond(&ordersReply{Orders: a.filter(func(o models.Order) bool {
			return msg.PatientID != "" && o.PatientID == msg.PatientID
		})})

	case *getInfo:
		ctx.Respond(a.info())

	case *resync:
		ctx.Respond(&resyncReply{Adopted: a.resync(msg.Reason)})

	case *syncReceived:
		a.onBroadcast(msg.Message)

	case *storageChanged:
		a.onStorage(msg.Change)

	case *actor.Stopping:
		a.stop()

	case *actor.Stopped:
		a.logger.Info("Ledger stopped")
	}
}

func (a *ledgerActor) start(ctx actor.Context) {
	bg := context.Background()
	defaults := a.opts.Defaults

	stored := a.store.Raw(bg)
	a.orders = a.store.Load(bg, defaults)
	a.counter = a.store.LoadCounter(bg, defaults)
	a.stamp = a.store.LoadStamp(bg)
	a.reconcileCounter()
	a.raw = a.encode(a.orders)

	if stored == "" {
		// Nothing persisted yet: seed the store so every process starts
		// from the same list and counter.
		a.store.SaveCounter(bg, a.counter)
		a.store.Save(bg, a.orders)
	}

	self := ctx.Self()
	root := ctx.ActorSystem().Root

	if a.opts.Channel != nil {
		sub, err := a.opts.Channel.Subscribe(bg, func(m broadcast.Message) {
			root.Send(self, &syncReceived{Message: m})
		})
		if err != nil {
			a.logger.Error("Failed to subscribe to broadcast channel", zap.Error(err))
		} else {
			a.sub = sub
		}
	}

	if a.opts.StorageEvents {
		watchCtx, cancel := context.WithCancel(bg)
		keys := a.store.Keys()
		changes, err := a.store.Backend().Watch(watchCtx, keys.Orders, keys.Counter)
		if err != nil {
			cancel()
			a.logger.Error("Failed to watch store", zap.Error(err))
		} else {
			a.cancelWatch = cancel
			go func() {
				for c := range changes {
					root.Send(self, &storageChanged{Change: c})
				}
			}()
		}
	}

	a.logger.Info("Ledger started",
		zap.Int("orders", len(a.orders)),
		zap.Int("next_sequence", a.counter),
		zap.Int64("version", a.stamp.Version),
		zap.String("policy", string(a.opts.Policy)))
}

func (a *ledgerActor) stop() {
	if a.cancelWatch != nil {
		a.cancelWatch()
		a.cancelWatch = nil
	}
	if a.sub != nil {
		if err := a.sub.Close(); err != nil {
			a.logger.Warn("Failed to close broadcast subscription", zap.Error(err))
		}
		a.sub = nil
	}
}

func (a *ledgerActor) info() *Info {
	return &Info{
		Origin:       a.opts.Origin,
		Orders:       len(a.orders),
		NextSequence: a.counter,
		Version:      a.stamp.Version,
		Policy:       a.opts.Policy,
	}
}

func (a *ledgerActor) encode(orders []models.Order) string {
	raw, err := store.EncodeOrders(orders)
	if err != nil {
		a.logger.Error("Failed to encode orders", zap.Error(err))
		return ""
	}
	return raw
}

// reconcileCounter keeps the next sequence above every id in the list.
func (a *ledgerActor) reconcileCounter() {
	if next := models.MaxSequence(a.orders) + 1; next > a.counter {
		a.counter = next
	}
}

func (a *ledgerActor) indexOf(id string) int {
	for i := range a.orders {
		if a.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (a *ledgerActor) filter(match func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range a.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	return models.CloneOrders(out)
}

func (a *ledgerActor) addOrder(draft models.OrderDraft) models.Order {
	bg := context.Background()

	seq := a.counter
	if stored := a.store.LoadCounter(bg, a.opts.Defaults); stored > seq {
		seq = stored
	}
	now := a.opts.Clock().In(a.opts.Location)
	order := draft.Build(models.FormatOrderID(now.Year(), seq), now)

	a.counter = seq + 1
	a.store.SaveCounter(bg, a.counter)

	a.orders = append([]models.Order{order}, a.orders...)
	a.commit()

	metrics.OrdersAdded.Inc()
	a.audit(ActionOrderCreated, order.ID, map[string]interface{}{
		"patientName": order.PatientName,
		"total":       order.Total,
		"status":      string(order.Status),
	})
	a.logger.Info("Order added",
		zap.String("order_id", order.ID),
		zap.String("patient", order.PatientName),
		zap.Float64("total", order.Total))

	return models.CloneOrders([]models.Order{order})[0]
}

// setStatus replaces the status of id without validation.
func (a *ledgerActor) setStatus(id string, status models.OrderStatus) (models.Order, bool) {
	i := a.indexOf(id)
	if i < 0 {
		a.logger.Debug("Status update for unknown order ignored", zap.String("order_id", id))
		return models.Order{}, false
	}

	from := a.orders[i].Status
	orders := models.CloneOrders(a.orders)
	orders[i].Status = status
	a.orders = orders
	a.commit()

	metrics.StatusUpdates.WithLabelValues(string(status)).Inc()
	a.audit(ActionStatusUpdated, id, map[string]interface{}{
		"from": string(from),
		"to":   string(status),
	})
	a.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	return models.CloneOrders(a.orders[i : i+1])[0], true
}

func (a *ledgerActor) transition(id string, status models.OrderStatus) (models.Order, error) {
	if !status.Valid() {
		return models.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	i := a.indexOf(id)
	if i < 0 {
		return models.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	from := a.orders[i].Status
	if !models.CanTransition(from, status) {
		return models.Order{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, status)
	}
	order, _ := a.setStatus(id, status)
	return order, nil
}

func (a *ledgerActor) advance(id string) (models.Order, error) {
	i := a.indexOf(id)
	if i < 0 {
		return models.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	next, ok := models.NextStatus(a.orders[i].Status)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s has no next status", ErrIllegalTransition, a.orders[i].Status)
	}
	return a.transition(id, next)
}

// commit stamps, persists and broadcasts the current list. The stamp is
// written before the list so a process reacting to the list change reads
// the matching stamp.
func (a *ledgerActor) commit() {
	bg := context.Background()

	a.stamp = store.Stamp{Version: a.stamp.Version + 1, Origin: a.opts.Origin}
	a.raw = a.encode(a.orders)

	a.store.SaveStamp(bg, a.stamp)
	a.store.Save(bg, a.orders)

	if a.opts.Channel == nil {
		return
	}
	msg := broadcast.SyncOrders(models.CloneOrders(a.orders), a.stamp.Version, a.opts.Origin)
	if err := a.opts.Channel.Publish(bg, msg); err != nil {
		a.logger.Warn("Failed to broadcast orders", zap.Error(err))
	}
}

func (a *ledgerActor) audit(action, orderID string, data map[string]interface{}) {
	if a.opts.Auditor == nil {
		return
	}
	data["origin"] = a.opts.Origin
	data["version"] = a.stamp.Version

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.RequestTimeout)
	defer cancel()
	if err := a.opts.Auditor.Record(ctx, action, orderID, data); err != nil {
		a.logger.Warn("Failed to record audit log",
			zap.String("action", action),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// adopt replaces the list with one produced elsewhere. Adopted lists are
// not persisted or re-broadcast.
func (a *ledgerActor) adopt(source string, orders []models.Order, raw string, incoming store.Stamp) {
	a.orders = orders
	a.raw = raw
	if incoming.Version > a.stamp.Version ||
		(incoming.Version == a.stamp.Version && incoming.Origin != "") {
		a.stamp = incoming
	}
	a.reconcileCounter()

	metrics.SyncAdopted.WithLabelValues(source).Inc()
	a.logger.Debug("Adopted orders",
		zap.String("source", source),
		zap.Int("orders", len(orders)),
		zap.Int64("version", a.stamp.Version))
}

func (a *ledgerActor) reject(source string, incoming store.Stamp) {
	metrics.SyncRejected.WithLabelValues(source).Inc()
	a.logger.Warn("Rejected stale orders",
		zap.String("source", source),
		zap.Int64("version", incoming.Version),
		zap.String("from", incoming.Origin),
		zap.Int64("local_version", a.stamp.Version),
		zap.String("local_origin", a.stamp.Origin))
}

func (a *ledgerActor) onBroadcast(msg broadcast.Message) {
	if msg.Type != broadcast.TypeSyncOrders {
		return
	}
	if msg.Origin != "" && msg.Origin == a.opts.Origin {
		return
	}

	incoming := store.Stamp{Version: msg.Version, Origin: msg.Origin}
	if !a.opts.Policy.accepts(a.stamp, incoming) {
		a.reject(metrics.SourceBroadcast, incoming)
		return
	}

	orders := msg.Payload
	if orders == nil {
		orders = []models.Order{}
	}
	a.adopt(metrics.SourceBroadcast, orders, a.encode(orders), incoming)
}

func (a *ledgerActor) onStorage(c store.Change) {
	keys := a.store.Keys()
	switch c.Key {
	case keys.Counter:
		if c.Deleted {
			return
		}
		if n := a.store.LoadCounter(context.Background(), a.opts.Defaults); n > a.counter {
			a.counter = n
		}
	case keys.Orders:
		if c.Deleted || c.Value == a.raw {
			return
		}
		a.adoptStored(metrics.SourceStorage, c.Value)
	}
}

func (a *ledgerActor) resync(reason string) bool {
	bg := context.Background()
	if n := a.store.LoadCounter(bg, a.opts.Defaults); n > a.counter {
		a.counter = n
	}

	raw := a.store.Raw(bg)
	if raw == "" || raw == a.raw {
		return false
	}
	adopted, stale := a.adoptStored(metrics.SourceFocus, raw)
	if adopted {
		a.logger.Info("Resynced orders from store", zap.String("reason", reason))
	}
	if stale && a.stamp.Origin != "" {
		a.restore(reason)
	}
	return adopted
}

// adoptStored adopts a serialized list read from the store. stale reports
// that the policy rejected it as older than the local snapshot.
func (a *ledgerActor) adoptStored(source, raw string) (adopted, stale bool) {
	orders, err := store.DecodeOrders(raw)
	if err != nil {
		a.logger.Warn("Ignoring undecodable stored orders",
			zap.String("source", source),
			zap.Error(err))
		return false, false
	}

	incoming := a.store.LoadStamp(context.Background())
	if !a.opts.Policy.accepts(a.stamp, incoming) {
		a.reject(source, incoming)
		return false, true
	}

	a.adopt(source, orders, a.encode(orders), incoming)
	return true, false
}

// restore writes the local snapshot over a stale store entry so processes
// that resync later converge on it. Nothing is broadcast.
func (a *ledgerActor) restore(reason string) {
	bg := context.Background()
	a.store.SaveStamp(bg, a.stamp)
	a.store.Save(bg, a.orders)

	metrics.StoreRestored.Inc()
	a.logger.Info("Restored store from local snapshot",
		zap.String("reason", reason),
		zap.Int64("version", a.stamp.Version),
		zap.String("origin", a.stamp.Origin))
}
