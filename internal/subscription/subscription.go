// Package subscription persists device service plans and their audit
// trail.
//
// Each device carries at most one subscription row describing its
// current plan. Every create and update also appends a history row
// recording the resulting plan state, the action, and the actor, so the
// billing trail survives later edits.
package subscription

import (
	"context"
	"errors"
	"time"
)

// Domain errors for the subscription package.
var (
	// ErrSubscriptionNotFound is returned when a device has no
	// subscription.
	ErrSubscriptionNotFound = errors.New("subscription: not found")

	// ErrSubscriptionExists is returned when creating a subscription
	// for a device that already has one.
	ErrSubscriptionExists = errors.New("subscription: already exists")

	// ErrDeviceInClientMode is returned when a subscription change is
	// attempted while the target device is serving its local portal.
	ErrDeviceInClientMode = errors.New("subscription: device is in client mode")
)

// Subscription is a device's current service plan.
type Subscription struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`

	// Mode is the plan type, e.g. "prepaid" or "postpaid".
	Mode string `json:"mode"`

	// Recurring indicates whether the plan renews automatically.
	Recurring bool `json:"recurring"`

	// AdditionalTime is extra credit in minutes granted on top of the
	// base plan.
	AdditionalTime int64 `json:"additionalTime"`

	// DueTimestamp is when the current plan period ends.
	DueTimestamp time.Time `json:"dueTimestamp"`

	CompanyID *string `json:"companyId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryAction distinguishes how a history row came to be.
type HistoryAction string

const (
	ActionCreated HistoryAction = "created"
	ActionUpdated HistoryAction = "updated"
)

// HistoryEntry is an immutable record of a subscription change. It
// captures the plan state after the change, not the delta.
type HistoryEntry struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscriptionId"`
	DeviceID       string        `json:"deviceId"`
	Mode           string        `json:"mode"`
	Recurring      bool          `json:"recurring"`
	AdditionalTime int64         `json:"additionalTime"`
	DueTimestamp   time.Time     `json:"dueTimestamp"`
	Action         HistoryAction `json:"action"`
	ChangedBy      *string       `json:"changedBy,omitempty"`
	CompanyID      *string       `json:"companyId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// UpdateParams carries a sparse subscription update. Nil fields are
// left untouched.
type UpdateParams struct {
	Mode           *string
	Recurring      *bool
	AdditionalTime *int64
	DueTimestamp   *time.Time
}

// IsZero reports whether the update contains no changes.
func (p UpdateParams) IsZero() bool {
	return p.Mode == nil && p.Recurring == nil &&
		p.AdditionalTime == nil && p.DueTimestamp == nil
}

// Repository defines the subscription persistence operations.
type Repository interface {
	// Create inserts a subscription and its "created" history row in
	// one transaction. Returns ErrSubscriptionExists if the device
	// already has a subscription.
	Create(ctx context.Context, sub *Subscription, changedBy *string) error

	// GetByDeviceID retrieves the subscription for a device.
	// Returns ErrSubscriptionNotFound if the device has none.
	GetByDeviceID(ctx context.Context, deviceID string) (*Subscription, error)

	// UpdateByDeviceID applies a sparse update and appends an
	// "updated" history row in one transaction. Returns the
	// subscription as stored after the update.
	UpdateByDeviceID(ctx context.Context, deviceID string, params UpdateParams, changedBy *string) (*Subscription, error)

	// History returns the audit trail for a device, oldest first.
	History(ctx context.Context, deviceID string) ([]HistoryEntry, error)
}
