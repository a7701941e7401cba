package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// Use errors.Is() to check for specific errors:
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry turned off, run without a recorder
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb client not connected")

	// ErrConnectionFailed indicates the initial connection could not be established.
	ErrConnectionFailed = errors.New("influxdb connection failed")

	// ErrWriteFailed indicates a point could not be queued for writing.
	ErrWriteFailed = errors.New("influxdb write failed")

	// ErrDisabled indicates InfluxDB is disabled in configuration.
	ErrDisabled = errors.New("influxdb is disabled")
)
