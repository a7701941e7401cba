package mqtt

import "fmt"

// Topic prefix for all device traffic.
//
// The device topic scheme is a fixed wire contract shared with firmware:
//
//	device/register              — registration handshake (bidirectional)
//	device/{publicId}/online     — device readiness / server probe
//	device/{publicId}/acknowledge — device delivery confirmations
//	device/{publicId}/wifi       — wifi credential commands
//	device/{publicId}/clientMode — client mode commands
//	device/{publicId}/subscription — subscription commands
const TopicPrefixDevice = "device"

// Topics provides builders for device MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Wifi("Ab3")
//	// Returns: "device/Ab3/wifi"
type Topics struct{}

// Register returns the registration handshake topic.
//
// Example: device/register
func (Topics) Register() string {
	return fmt.Sprintf("%s/register", TopicPrefixDevice)
}

// Online returns the readiness/probe topic for a device.
//
// Example: device/Ab3/online
func (Topics) Online(publicID string) string {
	return fmt.Sprintf("%s/%s/online", TopicPrefixDevice, publicID)
}

// Acknowledge returns the delivery-confirmation topic for a device.
//
// Example: device/Ab3/acknowledge
func (Topics) Acknowledge(publicID string) string {
	return fmt.Sprintf("%s/%s/acknowledge", TopicPrefixDevice, publicID)
}

// Wifi returns the wifi credential command topic for a device.
//
// Example: device/Ab3/wifi
func (Topics) Wifi(publicID string) string {
	return fmt.Sprintf("%s/%s/wifi", TopicPrefixDevice, publicID)
}

// ClientMode returns the client mode command topic for a device.
//
// Example: device/Ab3/clientMode
func (Topics) ClientMode(publicID string) string {
	return fmt.Sprintf("%s/%s/clientMode", TopicPrefixDevice, publicID)
}

// Subscription returns the subscription command topic for a device.
//
// Example: device/Ab3/subscription
func (Topics) Subscription(publicID string) string {
	return fmt.Sprintf("%s/%s/subscription", TopicPrefixDevice, publicID)
}

// AllOnline returns the wildcard pattern matching every device's online topic.
//
// Example: device/+/online
func (Topics) AllOnline() string {
	return fmt.Sprintf("%s/+/online", TopicPrefixDevice)
}

// AllAcknowledge returns the wildcard pattern matching every device's
// acknowledge topic.
//
// Example: device/+/acknowledge
func (Topics) AllAcknowledge() string {
	return fmt.Sprintf("%s/+/acknowledge", TopicPrefixDevice)
}
