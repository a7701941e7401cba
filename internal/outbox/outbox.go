// Package outbox persists device-bound commands until the target device
// acknowledges them.
//
// Devices are battery-saving and frequently offline, so a publish is
// only a best-effort hint. The durable copy of every command lives here:
// one PENDING slot per (device, topic) pair holding the latest payload,
// plus the acknowledged history. When a device comes online, the oldest
// pending message is redelivered; each acknowledgement releases the next
// one. Writing to an occupied slot overwrites the payload in place, so a
// device that was offline through five wifi changes receives only the
// final one.
package outbox

import (
	"context"
	"time"
)

// DeliveryStatus is the lifecycle state of an outbox message.
type DeliveryStatus string

const (
	// StatusPending marks a message awaiting device acknowledgement.
	StatusPending DeliveryStatus = "pending"

	// StatusAcknowledged marks a message the device has confirmed.
	// Acknowledged rows are retained as delivery history.
	StatusAcknowledged DeliveryStatus = "acknowledged"
)

// Message is a durable device-bound command.
type Message struct {
	ID             string
	DeviceID       string
	Topic          string
	Payload        []byte
	DeliveryStatus DeliveryStatus
	Timestamp      time.Time
}

// Store defines the outbox persistence operations.
//
// Implementations must uphold the single-slot invariant: at most one
// PENDING message per (device, topic) pair at any time.
type Store interface {
	// Put stores a pending message for the device and topic. If a
	// pending message already occupies the slot, its payload and
	// timestamp are overwritten; the slot never duplicates.
	Put(ctx context.Context, deviceID, topic string, payload []byte) (*Message, error)

	// PeekPending returns the oldest pending message for the device,
	// or nil if the device has nothing pending.
	PeekPending(ctx context.Context, deviceID string) (*Message, error)

	// Acknowledge marks the pending message for (device, topic) as
	// acknowledged. Returns false if no pending message matched;
	// a duplicate or stray acknowledgement is not an error.
	Acknowledge(ctx context.Context, deviceID, topic string) (bool, error)

	// ListPending returns all pending messages for the device, oldest
	// first.
	ListPending(ctx context.Context, deviceID string) ([]Message, error)

	// PendingCount returns the number of pending messages across all
	// devices.
	PendingCount(ctx context.Context) (int, error)
}
