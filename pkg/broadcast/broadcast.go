// Package broadcast carries ledger snapshots between processes that share
// one order ledger. A channel never hands a message back to the instance
// that published it.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
)

// TypeSyncOrders announces a complete order list.
const TypeSyncOrders = "SYNC_ORDERS"

// Message is the wire shape { type, payload }. Version and Origin are
// only set by ledgers that stamp their snapshots.
type Message struct {
	Type    string         `json:"type"`
	Payload []models.Order `json:"payload"`
	Version int64          `json:"version,omitempty"`
	Origin  string         `json:"origin,omitempty"`
}

// Handler receives messages from other instances. It runs on the
// channel's delivery goroutine and must not block.
type Handler func(Message)

type Subscription interface {
	Close() error
}

// Channel is one instance's end of a named broadcast channel.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, h Handler) (Subscription, error)
	Close() error
}

// SyncOrders builds the snapshot message for orders.
func SyncOrders(orders []models.Order, version int64, origin string) Message {
	return Message{
		Type:    TypeSyncOrders,
		Payload: orders,
		Version: version,
		Origin:  origin,
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Payload == nil {
		msg.Payload = []models.Order{}
	}
	return json.Marshal(msg)
}

func decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
