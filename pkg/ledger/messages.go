package ledger

import (
	"github.com/Vinayak0987/CareSync-sub001/pkg/broadcast"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
)

// API requests

type ready struct{}

type addOrder struct {
	Draft models.OrderDraft
}

type updateStatus struct {
	ID     string
	Status models.OrderStatus
}

type transitionStatus struct {
	ID     string
	Status models.OrderStatus
}

type advanceOrder struct {
	ID string
}

type listOrders struct{}

type getOrder struct {
	ID string
}

type ordersByOwner struct {
	Name string
}

type ordersByOwnerID struct {
	PatientID string
}

type getInfo struct{}

// resync re-reads the store. Reason is "focus" or "refresh".
type resync struct {
	Reason string
}

// Events from collaborators

type syncReceived struct {
	Message broadcast.Message
}

type storageChanged struct {
	Change store.Change
}

// Replies

type orderReply struct {
	Order models.Order
	Found bool
	Err   error
}

type ordersReply struct {
	Orders []models.Order
}

type resyncReply struct {
	Adopted bool
}
