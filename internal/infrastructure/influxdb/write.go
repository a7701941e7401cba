package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement name for all delivery lifecycle events.
const measurementDeliveryEvents = "delivery_events"

// Event names recorded against the delivery_events measurement.
const (
	eventCommandIssued = "command_issued"
	eventDeviceOnline  = "device_online"
	eventAcknowledged  = "acknowledged"
	eventRedelivered   = "redelivered"
)

// RecordCommandIssued records a command being queued and published to a device.
func (c *Client) RecordCommandIssued(publicID, topic string) {
	c.writeEvent(eventCommandIssued, publicID, topic)
}

// RecordDeviceOnline records a device announcing itself on its online topic.
func (c *Client) RecordDeviceOnline(publicID string) {
	c.writeEvent(eventDeviceOnline, publicID, "")
}

// RecordAcknowledged records a device confirming receipt of a command.
func (c *Client) RecordAcknowledged(publicID, topic string) {
	c.writeEvent(eventAcknowledged, publicID, topic)
}

// RecordRedelivered records a pending command being resent to a device.
func (c *Client) RecordRedelivered(publicID, topic string) {
	c.writeEvent(eventRedelivered, publicID, topic)
}

// writeEvent queues a single delivery event point.
//
// The write is non-blocking; failures surface through the error callback
// registered with SetOnError.
func (c *Client) writeEvent(event, publicID, topic string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"event":     event,
		"public_id": publicID,
	}
	if topic != "" {
		tags["topic"] = topic
	}

	point := write.NewPoint(
		measurementDeliveryEvents,
		tags,
		map[string]interface{}{
			"count": int64(1),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint queues an arbitrary pre-built point.
//
// Most callers should use the Record* helpers instead; this exists for
// ad-hoc telemetry that does not fit the delivery event schema.
func (c *Client) WritePoint(point *write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(point)

	return nil
}
