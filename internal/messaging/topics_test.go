package messaging

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		kind     RouteKind
		publicID string
	}{
		{name: "register", topic: "device/register", kind: RouteRegister},
		{name: "online", topic: "device/Ab3/online", kind: RouteOnline, publicID: "Ab3"},
		{name: "acknowledge", topic: "device/Ab3/acknowledge", kind: RouteAcknowledge, publicID: "Ab3"},
		{name: "command topic is not inbound", topic: "device/Ab3/wifi", kind: RouteUnknown},
		{name: "empty public id", topic: "device//online", kind: RouteUnknown},
		{name: "wrong prefix", topic: "sensor/Ab3/online", kind: RouteUnknown},
		{name: "too many segments", topic: "device/Ab3/online/extra", kind: RouteUnknown},
		{name: "bare prefix", topic: "device", kind: RouteUnknown},
		{name: "empty topic", topic: "", kind: RouteUnknown},
		{name: "register with device segment", topic: "device/Ab3/register", kind: RouteUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := Classify(tt.topic)
			if route.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %v, want %v", tt.topic, route.Kind, tt.kind)
			}
			if route.PublicID != tt.publicID {
				t.Errorf("Classify(%q).PublicID = %q, want %q", tt.topic, route.PublicID, tt.publicID)
			}
		})
	}
}

func TestRouteKindString(t *testing.T) {
	if RouteRegister.String() != "register" {
		t.Errorf("RouteRegister.String() = %q", RouteRegister.String())
	}
	if RouteUnknown.String() != "unknown" {
		t.Errorf("RouteUnknown.String() = %q", RouteUnknown.String())
	}
}
