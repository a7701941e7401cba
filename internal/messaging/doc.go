// Package messaging implements the device protocol: topic
// classification, per-device dispatch, and the three inbound handlers
// (registration, online, acknowledge).
//
// # Protocol
//
// Devices talk to the server over three topic shapes. "device/register"
// is a shared handshake channel: a board publishes its MAC address and
// receives either its public ID and secret key or a 401-coded error on
// the same topic. "device/{publicId}/online" announces readiness and is
// the only trigger for redelivering pending commands. A board confirms
// each delivered command on "device/{publicId}/acknowledge", naming the
// topic it received; the confirmation releases the next pending command.
//
// # Ordering
//
// The transport serializes message arrival, but handler bodies do their
// own repository and publish I/O. The Dispatcher therefore runs handlers
// serially per device key and concurrently across devices: an online
// announcement and the acknowledgement that chases it never race, while
// an unrelated device's traffic is never blocked behind them.
//
// # Loopback
//
// The server publishes onto topics it also subscribes to (registration
// responses, online probes). Every outbound payload carries
// source:"server"; inbound messages with that marker are dropped before
// classification.
package messaging
