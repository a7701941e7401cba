package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PCSdevs/pay-to-power-core/internal/device"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/mqtt"
	"github.com/PCSdevs/pay-to-power-core/internal/outbox"
)

// Publisher is the outbound transport surface the router needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, payload []byte) error
}

// DeviceService is the device surface the router needs.
// *device.Registry satisfies it.
type DeviceService interface {
	Register(ctx context.Context, params device.RegisterParams) (*device.Device, error)
	GetByPublicID(ctx context.Context, publicID string) (*device.Device, error)
	SetClientMode(ctx context.Context, id string, on bool) error
}

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives delivery events for telemetry. Optional.
type Recorder interface {
	RecordDeviceOnline(publicID string)
	RecordAcknowledged(publicID, topic string)
	RecordRedelivered(publicID, topic string)
}

// handlerTimeout bounds the repository and publish work done for one
// inbound message.
const handlerTimeout = 10 * time.Second

// Router classifies inbound device messages and drives the protocol:
// registration handshakes, online-triggered redelivery, and
// acknowledgement state transitions.
//
// Messages for the same device are processed in arrival order; messages
// for different devices proceed in parallel. Registration messages are
// serialized per MAC address instead, since no public ID exists yet.
type Router struct {
	devices    DeviceService
	outbox     outbox.Store
	publisher  Publisher
	dispatcher *Dispatcher
	topics     mqtt.Topics
	logger     Logger
	recorder   Recorder

	// serviceAccount is recorded as the registering actor when a
	// board self-registers over MQTT with no authenticated caller.
	serviceAccount string
}

// NewRouter creates a protocol router.
func NewRouter(devices DeviceService, store outbox.Store, publisher Publisher, logger Logger, serviceAccount string) *Router {
	return &Router{
		devices:        devices,
		outbox:         store,
		publisher:      publisher,
		dispatcher:     NewDispatcher(0),
		logger:         logger,
		serviceAccount: serviceAccount,
	}
}

// SetRecorder attaches an optional delivery-event recorder.
func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SubscriptionTopics returns the topic filters the router consumes.
// The adapter should subscribe HandleMessage to each.
func (r *Router) SubscriptionTopics() []string {
	return []string{
		r.topics.Register(),
		r.topics.AllOnline(),
		r.topics.AllAcknowledge(),
	}
}

// HandleMessage is the inbound entry point, wired as the MQTT message
// handler. It drops loopback and unroutable messages, then hands the
// message to the per-device dispatcher. The returned error is only ever
// a parse or dispatch failure; protocol-level failures are answered on
// the wire, not returned.
func (r *Router) HandleMessage(topic string, payload []byte) error {
	if isFromServer(payload) {
		r.logger.Debug("dropping loopback message", "topic", topic)
		return nil
	}

	route := Classify(topic)
	switch route.Kind {
	case RouteRegister:
		var req RegisterRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.MACAddress == "" {
			r.logger.Warn("dropping malformed registration", "topic", topic, "error", err)
			return fmt.Errorf("%w: registration body", ErrMalformedMessage)
		}
		// No public ID exists yet; serialize on the MAC instead so two
		// boards registering at once cannot interleave.
		return r.dispatcher.Submit("register:"+req.MACAddress, func() {
			r.handleRegister(req)
		})

	case RouteOnline:
		return r.dispatcher.Submit(route.PublicID, func() {
			r.handleOnline(route.PublicID)
		})

	case RouteAcknowledge:
		var req AcknowledgeRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.Topic == "" {
			r.logger.Warn("dropping malformed acknowledgement", "topic", topic, "error", err)
			return fmt.Errorf("%w: acknowledge body", ErrMalformedMessage)
		}
		return r.dispatcher.Submit(route.PublicID, func() {
			r.handleAcknowledge(route.PublicID, req.Topic)
		})

	default:
		r.logger.Warn("dropping message on unroutable topic", "topic", topic)
		return nil
	}
}

// Close drains in-flight handlers and stops the dispatcher.
func (r *Router) Close() {
	r.dispatcher.Close()
}

// handleRegister runs the registration handshake. Both outcomes are
// answered on the shared registration topic.
func (r *Router) handleRegister(req RegisterRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	actor := r.serviceAccount
	dev, err := r.devices.Register(ctx, device.RegisterParams{
		MACAddress:   req.MACAddress,
		BoardNumber:  req.BoardNumber,
		RegisteredBy: &actor,
	})
	if err != nil {
		reason := "registration failed"
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			reason = "device already registered"
		case errors.Is(err, device.ErrInvalidMAC):
			reason = "invalid mac address"
		case errors.Is(err, device.ErrIDGenerationExhausted):
			r.logger.Error("public id space exhausted", "mac", req.MACAddress)
			reason = "id generation exhausted"
		default:
			r.logger.Error("registration failed", "mac", req.MACAddress, "error", err)
		}
		r.publishError(r.topics.Register(), reason)
		return
	}

	response := RegisterSuccess{
		DeviceID:   dev.PublicID,
		MACAddress: dev.MACAddress,
		SecretKey:  dev.SecretKey,
		Status:     "registered",
		Code:       200,
		Source:     SourceServer,
		Timestamp:  wireTimestamp(),
	}
	r.publishJSON(r.topics.Register(), response)

	r.logger.Info("device registered over mqtt",
		"public_id", dev.PublicID,
		"mac", dev.MACAddress,
	)
}

// handleOnline processes a readiness announcement: clear client mode if
// set, then redeliver the oldest pending command, if any.
func (r *Router) handleOnline(publicID string) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	dev, err := r.devices.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			r.publishError(r.topics.Online(publicID), "unknown device")
			return
		}
		r.logger.Error("online lookup failed", "public_id", publicID, "error", err)
		return
	}

	// Coming online means the board left its local portal.
	if dev.IsClientModeOn {
		if err := r.devices.SetClientMode(ctx, dev.ID, false); err != nil {
			r.logger.Error("clearing client mode failed", "public_id", publicID, "error", err)
		}
	}

	if r.recorder != nil {
		r.recorder.RecordDeviceOnline(publicID)
	}

	r.redeliverNext(ctx, dev)
}

// handleAcknowledge processes a delivery confirmation: flip the outbox
// slot, apply the client-mode side effect, then release the next
// pending command.
func (r *Router) handleAcknowledge(publicID, ackedTopic string) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	dev, err := r.devices.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			r.publishError(r.topics.Acknowledge(publicID), "unknown device")
			return
		}
		r.logger.Error("acknowledge lookup failed", "public_id", publicID, "error", err)
		return
	}

	matched, err := r.outbox.Acknowledge(ctx, dev.ID, ackedTopic)
	if err != nil {
		r.logger.Error("acknowledge failed", "public_id", publicID, "topic", ackedTopic, "error", err)
		return
	}
	if !matched {
		// Duplicate or out-of-order acknowledgement; tolerated.
		r.logger.Debug("acknowledgement matched nothing pending",
			"public_id", publicID,
			"topic", ackedTopic,
		)
	} else if r.recorder != nil {
		r.recorder.RecordAcknowledged(publicID, ackedTopic)
	}

	// Confirming the clientMode command means the board has switched
	// into its local portal.
	if ackedTopic == r.topics.ClientMode(publicID) {
		if err := r.devices.SetClientMode(ctx, dev.ID, true); err != nil {
			r.logger.Error("setting client mode failed", "public_id", publicID, "error", err)
		}
	}

	r.redeliverNext(ctx, dev)
}

// redeliverNext republishes the oldest pending command for the device,
// verbatim, on its original topic. One command per event: the next one
// is released by this one's acknowledgement or a later online event.
func (r *Router) redeliverNext(ctx context.Context, dev *device.Device) {
	msg, err := r.outbox.PeekPending(ctx, dev.ID)
	if err != nil {
		r.logger.Error("peeking pending messages failed", "device_id", dev.ID, "error", err)
		return
	}
	if msg == nil {
		return
	}

	if err := r.publisher.PublishJSON(msg.Topic, msg.Payload); err != nil {
		// The slot stays pending; the next online event retries.
		r.logger.Warn("redelivery publish failed",
			"device_id", dev.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return
	}

	if r.recorder != nil {
		r.recorder.RecordRedelivered(dev.PublicID, msg.Topic)
	}

	r.logger.Info("redelivered pending command",
		"device_id", dev.ID,
		"topic", msg.Topic,
	)
}

// publishError sends the standard failure payload on the given topic.
func (r *Router) publishError(topic, reason string) {
	r.publishJSON(topic, ErrorResponse{
		Code:      401,
		Status:    reason,
		Source:    SourceServer,
		Timestamp: wireTimestamp(),
	})
}

// publishJSON marshals and publishes, logging failures. Wire responses
// are best-effort; the outbox carries anything that must not be lost.
func (r *Router) publishJSON(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshalling wire payload failed", "topic", topic, "error", err)
		return
	}
	if err := r.publisher.PublishJSON(topic, data); err != nil {
		r.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}
