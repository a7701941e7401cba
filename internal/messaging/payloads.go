package messaging

import (
	"encoding/json"
	"time"
)

// SourceServer marks payloads originating from this service. Inbound
// messages carrying the marker are loopback of our own publishes and
// are dropped before any handler runs.
const SourceServer = "server"

// RegisterRequest is the device→server body on the registration topic.
type RegisterRequest struct {
	MACAddress  string `json:"macAddress"`
	BoardNumber string `json:"boardNumber"`
}

// RegisterSuccess is the server→device response to a successful
// registration. DeviceID carries the topic-facing public ID the board
// must use from now on.
type RegisterSuccess struct {
	DeviceID   string `json:"deviceId"`
	MACAddress string `json:"macAddress"`
	SecretKey  string `json:"secretKey"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Source     string `json:"source"`
	Timestamp  string `json:"timestamp"`
}

// ErrorResponse is the server→device failure payload used on any topic.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// OnlineProbe is published to a device's online topic to nudge an
// already-connected board into re-checking for pending work. The field
// values are fixed; firmware matches them literally.
type OnlineProbe struct {
	CheckingConnection string `json:"checkingConnection"`
	Source             string `json:"source"`
}

// NewOnlineProbe returns the canonical probe payload.
func NewOnlineProbe() OnlineProbe {
	return OnlineProbe{
		CheckingConnection: "isDeviceOnline",
		Source:             SourceServer,
	}
}

// AcknowledgeRequest is the device→server body confirming receipt of a
// previously delivered command topic.
type AcknowledgeRequest struct {
	Topic string `json:"topic"`
}

// envelope is the minimal shape peeked at for the loopback check.
type envelope struct {
	Source string `json:"source"`
}

// isFromServer reports whether a payload self-identifies as one of our
// own publishes. Unparseable payloads are not from the server; whether
// they are malformed is the handler's call.
func isFromServer(payload []byte) bool {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	return env.Source == SourceServer
}

// wireTimestamp formats a server-side timestamp for wire payloads.
func wireTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
