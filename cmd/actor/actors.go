package main

import (
	"fmt"
	"math/rand"

	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// TabActor plays one open tab: on every tick it either places an order or
// moves one of the visible orders forward.
type TabActor struct {
	ledger *ledger.Ledger
	rand   *rand.Rand
	logger *zap.Logger

	placed   int
	advanced int
}

// Messages
type tick struct{}

type tabStats struct {
	Placed   int
	Advanced int
}

type getStats struct{}

var patients = []models.Patient{
	{ID: "pat-meera-nair", Name: "Meera Nair"},
	{ID: "pat-arjun-rao", Name: "Arjun Rao"},
	{ID: "pat-fatima-khan", Name: "Fatima Khan"},
}

func (a *TabActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *tick:
		if a.rand.Intn(3) == 0 {
			a.placeOrder()
		} else {
			a.advanceOrder()
		}

	case *getStats:
		ctx.Respond(&tabStats{Placed: a.placed, Advanced: a.advanced})

	case *actor.Started:
		a.logger.Info("Tab actor started", zap.String("origin", a.ledger.Origin()))

	case *actor.Stopped:
		a.logger.Info("Tab actor stopped",
			zap.Int("placed", a.placed),
			zap.Int("advanced", a.advanced))
	}
}

func (a *TabActor) placeOrder() {
	p := patients[a.rand.Intn(len(patients))]
	order, err := a.ledger.AddOrder(p.Draft(
		fmt.Sprintf("Ward %d, CareSync Clinic", a.rand.Intn(9)+1),
		models.OrderItem{Name: "Paracetamol 650mg", Quantity: a.rand.Intn(3) + 1, Price: 30},
	))
	if err != nil {
		a.logger.Warn("Failed to place order", zap.Error(err))
		return
	}
	a.placed++
	a.logger.Debug("Order placed", zap.String("order_id", order.ID))
}

func (a *TabActor) advanceOrder() {
	orders, err := a.ledger.Orders()
	if err != nil || len(orders) == 0 {
		return
	}
	target := orders[a.rand.Intn(len(orders))]
	if _, ok := models.NextStatus(target.Status); !ok {
		return
	}
	order, err := a.ledger.AdvanceOrder(target.ID)
	if err != nil {
		a.logger.Debug("Advance skipped", zap.String("order_id", target.ID), zap.Error(err))
		return
	}
	a.advanced++
	a.logger.Debug("Order advanced",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)))
}
