package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of a pharmacy order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusDispatched OrderStatus = "dispatched"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// OrderDateLayout is the display format of Order.OrderDate ("31 Jan 2026, 10:30 AM").
const OrderDateLayout = "02 Jan 2006, 03:04 PM"

var forward = map[OrderStatus]OrderStatus{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusDispatched,
	StatusDispatched: StatusDelivered,
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDispatched, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// NextStatus returns the forward successor of s. ok is false for
// delivered, cancelled and unknown statuses.
func NextStatus(s OrderStatus) (next OrderStatus, ok bool) {
	next, ok = forward[s]
	return next, ok
}

// CanTransition reports whether from -> to is an allowed forward move.
// Only pending may be cancelled.
func CanTransition(from, to OrderStatus) bool {
	if to == StatusCancelled {
		return from == StatusPending
	}
	next, ok := forward[from]
	return ok && next == to
}

type OrderItem struct {
	Name     string  `json:"name" binding:"required"`
	Quantity int     `json:"quantity" binding:"required,min=1"`
	Price    float64 `json:"price" binding:"min=0"`
}

// Order is one patient purchase as persisted and broadcast.
type Order struct {
	ID                   string      `json:"id"`
	PatientID            string      `json:"patientId,omitempty"`
	PatientName          string      `json:"patientName"`
	PatientAvatar        string      `json:"patientAvatar"`
	Items                []OrderItem `json:"items"`
	Total                float64     `json:"total"`
	Status               OrderStatus `json:"status"`
	Prescription         bool        `json:"prescription"`
	PrescriptionVerified bool        `json:"prescriptionVerified"`
	OrderDate            string      `json:"orderDate"`
	DeliveryAddress      string      `json:"deliveryAddress"`
}

// OrderDraft is an Order without the fields the ledger assigns.
type OrderDraft struct {
	PatientID            string      `json:"patientId,omitempty"`
	PatientName          string      `json:"patientName" binding:"required"`
	PatientAvatar        string      `json:"patientAvatar"`
	Items                []OrderItem `json:"items" binding:"required,min=1,dive"`
	Total                float64     `json:"total"`
	Status               OrderStatus `json:"status"`
	Prescription         bool        `json:"prescription"`
	PrescriptionVerified bool        `json:"prescriptionVerified"`
	DeliveryAddress      string      `json:"deliveryAddress" binding:"required"`
}

// ItemsTotal sums quantity*price over items.
func ItemsTotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.Price
	}
	return total
}

// Build turns the draft into an Order. A zero Total is computed from the
// items and an empty Status defaults to pending.
func (d OrderDraft) Build(id string, createdAt time.Time) Order {
	total := d.Total
	if total == 0 {
		total = ItemsTotal(d.Items)
	}
	status := d.Status
	if status == "" {
		status = StatusPending
	}
	items := make([]OrderItem, len(d.Items))
	copy(items, d.Items)

	return Order{
		ID:                   id,
		PatientID:            d.PatientID,
		PatientName:          d.PatientName,
		PatientAvatar:        d.PatientAvatar,
		Items:                items,
		Total:                total,
		Status:               status,
		Prescription:         d.Prescription,
		PrescriptionVerified: d.PrescriptionVerified,
		OrderDate:            createdAt.Format(OrderDateLayout),
		DeliveryAddress:      d.DeliveryAddress,
	}
}

// FormatOrderID renders ORD-<year>-<seq> with seq padded to 3 digits.
func FormatOrderID(year, seq int) string {
	return fmt.Sprintf("ORD-%d-%03d", year, seq)
}

// ParseOrderID is the inverse of FormatOrderID.
func ParseOrderID(id string) (year, seq int, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != "ORD" {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0, 0, false
	}
	return year, seq, true
}

// MaxSequence returns the highest id sequence present in orders, or 0.
func MaxSequence(orders []Order) int {
	maxSeq := 0
	for _, o := range orders {
		if _, seq, ok := ParseOrderID(o.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq
}

// CloneOrders deep-copies a list so callers never share item slices.
func CloneOrders(orders []Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = o
		if o.Items != nil {
			out[i].Items = make([]OrderItem, len(o.Items))
			copy(out[i].Items, o.Items)
		}
	}
	return out
}
