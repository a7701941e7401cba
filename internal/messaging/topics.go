package messaging

import "strings"

// RouteKind identifies which protocol handler an inbound topic maps to.
type RouteKind int

const (
	// RouteUnknown is a topic outside the device protocol.
	RouteUnknown RouteKind = iota

	// RouteRegister is the shared registration handshake topic.
	RouteRegister

	// RouteOnline is a per-device readiness announcement.
	RouteOnline

	// RouteAcknowledge is a per-device delivery confirmation.
	RouteAcknowledge
)

// String returns the route kind name for logging.
func (k RouteKind) String() string {
	switch k {
	case RouteRegister:
		return "register"
	case RouteOnline:
		return "online"
	case RouteAcknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// Route is the result of classifying an inbound topic.
type Route struct {
	Kind RouteKind

	// PublicID is the device segment of per-device topics, empty for
	// the registration topic.
	PublicID string
}

// Classify maps a topic string onto the fixed protocol table:
//
//	device/register              → RouteRegister
//	device/{publicId}/online     → RouteOnline
//	device/{publicId}/acknowledge → RouteAcknowledge
//
// Anything else, including a per-device topic with an empty public ID
// segment, is RouteUnknown.
func Classify(topic string) Route {
	parts := strings.Split(topic, "/")

	switch {
	case len(parts) == 2 && parts[0] == "device" && parts[1] == "register":
		return Route{Kind: RouteRegister}

	case len(parts) == 3 && parts[0] == "device" && parts[1] != "":
		switch parts[2] {
		case "online":
			return Route{Kind: RouteOnline, PublicID: parts[1]}
		case "acknowledge":
			return Route{Kind: RouteAcknowledge, PublicID: parts[1]}
		}
	}

	return Route{Kind: RouteUnknown}
}
