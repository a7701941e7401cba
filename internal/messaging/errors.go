package messaging

import "errors"

// ErrMalformedMessage is returned when an inbound payload cannot be
// parsed into the shape its topic requires. Malformed messages are
// dropped with a logged warning and never propagate further.
var ErrMalformedMessage = errors.New("messaging: malformed message")
