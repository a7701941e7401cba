// Package command implements the admin-facing command issuers.
//
// Every operation follows one template: authorize, validate the target
// device, persist the domain change, park the device-facing payload in
// the outbox, attempt an immediate publish, and nudge the device with
// an online probe. The HTTP caller gets the updated entity back
// immediately; actual delivery and acknowledgement happen
// asynchronously through the outbox.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PCSdevs/pay-to-power-core/internal/auth"
	"github.com/PCSdevs/pay-to-power-core/internal/device"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/mqtt"
	"github.com/PCSdevs/pay-to-power-core/internal/messaging"
	"github.com/PCSdevs/pay-to-power-core/internal/outbox"
	"github.com/PCSdevs/pay-to-power-core/internal/subscription"
)

// Publisher is the outbound transport surface the issuer needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, payload []byte) error
}

// Logger defines the logging interface used by the Issuer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives command-issue events for telemetry. Optional.
type Recorder interface {
	RecordCommandIssued(publicID, topic string)
}

// Issuer executes admin commands against devices.
type Issuer struct {
	authorizer    auth.Authorizer
	devices       *device.Registry
	subscriptions subscription.Repository
	outbox        outbox.Store
	publisher     Publisher
	topics        mqtt.Topics
	logger        Logger
	recorder      Recorder
}

// NewIssuer creates a command issuer.
func NewIssuer(
	authorizer auth.Authorizer,
	devices *device.Registry,
	subscriptions subscription.Repository,
	store outbox.Store,
	publisher Publisher,
	logger Logger,
) *Issuer {
	return &Issuer{
		authorizer:    authorizer,
		devices:       devices,
		subscriptions: subscriptions,
		outbox:        store,
		publisher:     publisher,
		logger:        logger,
	}
}

// SetRecorder attaches an optional command-event recorder.
func (i *Issuer) SetRecorder(rec Recorder) {
	i.recorder = rec
}

// RegisterDevice creates a device record on behalf of an authenticated
// caller, mirroring what the MQTT handshake does for self-registering
// boards.
func (i *Issuer) RegisterDevice(ctx context.Context, actor auth.Actor, params device.RegisterParams) (*device.Device, error) {
	err := i.authorizer.Authorize(ctx, actor, auth.Requirement{
		Module:  auth.ModuleDevice,
		Actions: []string{auth.ActionAdd},
	})
	if err != nil {
		return nil, err
	}

	if params.RegisteredBy == nil {
		params.RegisteredBy = &actor.UserID
	}
	if params.CompanyID == nil && actor.CompanyID != "" {
		params.CompanyID = &actor.CompanyID
	}

	return i.devices.Register(ctx, params)
}

// WifiParams carries new wifi credentials for a device.
type WifiParams struct {
	SSID     string
	Password string
}

// wifiCommand is the device-facing wifi payload.
type wifiCommand struct {
	DeviceID     string `json:"deviceId"`
	MACAddress   string `json:"macAddress"`
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`
	Status       string `json:"status"`
	Code         int    `json:"code"`
	Source       string `json:"source"`
	Timestamp    string `json:"timestamp"`
}

// UpdateWifi persists new wifi credentials and queues them for the
// device.
func (i *Issuer) UpdateWifi(ctx context.Context, actor auth.Actor, deviceID string, params WifiParams) (*device.Device, error) {
	err := i.authorizer.Authorize(ctx, actor, auth.Requirement{
		Module:  auth.ModuleDevice,
		Actions: []string{auth.ActionEdit},
	})
	if err != nil {
		return nil, err
	}

	dev, err := i.devices.Update(ctx, deviceID, device.UpdateParams{
		WifiSSID:     &params.SSID,
		WifiPassword: &params.Password,
	})
	if err != nil {
		return nil, err
	}

	payload := wifiCommand{
		DeviceID:     dev.PublicID,
		MACAddress:   dev.MACAddress,
		WifiSSID:     params.SSID,
		WifiPassword: params.Password,
		Status:       "wifi credentials updated",
		Code:         200,
		Source:       messaging.SourceServer,
		Timestamp:    commandTimestamp(),
	}
	if err := i.issue(ctx, dev, i.topics.Wifi(dev.PublicID), payload); err != nil {
		return nil, err
	}

	return dev, nil
}

// clientModeCommand is the device-facing client mode payload.
type clientModeCommand struct {
	ClientMode bool   `json:"clientMode"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Source     string `json:"source"`
	Timestamp  string `json:"timestamp"`
}

// EnableClientMode queues a client mode switch for the device. The
// device's IsClientModeOn flag is NOT set here; it flips when the board
// acknowledges the command.
func (i *Issuer) EnableClientMode(ctx context.Context, actor auth.Actor, deviceID string) (*device.Device, error) {
	err := i.authorizer.Authorize(ctx, actor, auth.Requirement{
		Module:  auth.ModuleDevice,
		Actions: []string{auth.ActionEdit},
	})
	if err != nil {
		return nil, err
	}

	dev, err := i.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	payload := clientModeCommand{
		ClientMode: true,
		Status:     "client mode requested",
		Code:       200,
		Source:     messaging.SourceServer,
		Timestamp:  commandTimestamp(),
	}
	if err := i.issue(ctx, dev, i.topics.ClientMode(dev.PublicID), payload); err != nil {
		return nil, err
	}

	return dev, nil
}

// subscriptionCommand is the device-facing subscription payload.
type subscriptionCommand struct {
	SubscriptionID string `json:"subscriptionId"`
	Mode           string `json:"mode"`
	Recurring      bool   `json:"recurring"`
	AdditionalTime int64  `json:"additionalTime"`
	DueTimestamp   string `json:"dueTimestamp"`
	Status         string `json:"status"`
	Code           int    `json:"code"`
	Source         string `json:"source"`
	Timestamp      string `json:"timestamp"`
}

// CreateSubscriptionParams carries a new service plan for a device.
type CreateSubscriptionParams struct {
	DeviceID       string
	Mode           string
	Recurring      bool
	AdditionalTime int64
	DueTimestamp   time.Time
}

// CreateSubscription persists a new plan with its audit entry and
// queues it for the device.
func (i *Issuer) CreateSubscription(ctx context.Context, actor auth.Actor, params CreateSubscriptionParams) (*subscription.Subscription, error) {
	err := i.authorizer.Authorize(ctx, actor, auth.Requirement{
		Module:  auth.ModuleSubscription,
		Actions: []string{auth.ActionAdd},
	})
	if err != nil {
		return nil, err
	}

	dev, err := i.devices.Get(ctx, params.DeviceID)
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		DeviceID:       dev.ID,
		Mode:           params.Mode,
		Recurring:      params.Recurring,
		AdditionalTime: params.AdditionalTime,
		DueTimestamp:   params.DueTimestamp.UTC(),
	}
	if actor.CompanyID != "" {
		sub.CompanyID = &actor.CompanyID
	}

	if err := i.subscriptions.Create(ctx, sub, &actor.UserID); err != nil {
		return nil, err
	}

	payload := subscriptionPayload(sub, "subscription created")
	if err := i.issue(ctx, dev, i.topics.Subscription(dev.PublicID), payload); err != nil {
		return nil, err
	}

	return sub, nil
}

// UpdateSubscription applies a sparse plan change and queues the
// resulting plan for the device. Rejected with ErrDeviceInClientMode
// while the board is serving its local portal; nothing is written in
// that case.
func (i *Issuer) UpdateSubscription(ctx context.Context, actor auth.Actor, deviceID string, params subscription.UpdateParams) (*subscription.Subscription, error) {
	err := i.authorizer.Authorize(ctx, actor, auth.Requirement{
		Module:  auth.ModuleSubscription,
		Actions: []string{auth.ActionEdit},
	})
	if err != nil {
		return nil, err
	}

	dev, err := i.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if dev.IsClientModeOn {
		return nil, subscription.ErrDeviceInClientMode
	}

	sub, err := i.subscriptions.UpdateByDeviceID(ctx, dev.ID, params, &actor.UserID)
	if err != nil {
		return nil, err
	}

	payload := subscriptionPayload(sub, "subscription updated")
	if err := i.issue(ctx, dev, i.topics.Subscription(dev.PublicID), payload); err != nil {
		return nil, err
	}

	return sub, nil
}

func subscriptionPayload(sub *subscription.Subscription, status string) subscriptionCommand {
	return subscriptionCommand{
		SubscriptionID: sub.ID,
		Mode:           sub.Mode,
		Recurring:      sub.Recurring,
		AdditionalTime: sub.AdditionalTime,
		DueTimestamp:   sub.DueTimestamp.UTC().Format(time.RFC3339),
		Status:         status,
		Code:           200,
		Source:         messaging.SourceServer,
		Timestamp:      commandTimestamp(),
	}
}

// issue parks the payload in the outbox, attempts an immediate publish,
// and probes the device. Publish failures are logged, never returned:
// once the outbox holds the command, delivery is guaranteed by the next
// online event.
func (i *Issuer) issue(ctx context.Context, dev *device.Device, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling command payload: %w", err)
	}

	if _, err := i.outbox.Put(ctx, dev.ID, topic, data); err != nil {
		return fmt.Errorf("storing command: %w", err)
	}

	if err := i.publisher.PublishJSON(topic, data); err != nil {
		i.logger.Warn("immediate publish failed, outbox will redeliver",
			"device_id", dev.ID,
			"topic", topic,
			"error", err,
		)
	}

	i.probe(dev.PublicID)

	if i.recorder != nil {
		i.recorder.RecordCommandIssued(dev.PublicID, topic)
	}

	i.logger.Info("command issued", "device_id", dev.ID, "topic", topic)
	return nil
}

// probe publishes the self-identifying online probe so an already
// connected board re-checks for pending work without waiting for a
// natural reconnect.
func (i *Issuer) probe(publicID string) {
	data, err := json.Marshal(messaging.NewOnlineProbe())
	if err != nil {
		i.logger.Error("marshalling online probe failed", "error", err)
		return
	}

	if err := i.publisher.PublishJSON(i.topics.Online(publicID), data); err != nil {
		i.logger.Debug("online probe publish failed", "public_id", publicID, "error", err)
	}
}

func commandTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
