// Package influxdb provides delivery telemetry storage backed by InfluxDB v2.
//
// Every delivery lifecycle event (command issued, device online, command
// acknowledged, command redelivered) is written as a point against the
// delivery_events measurement, tagged by event name, device public id and
// command topic. Writes are batched and non-blocking; async failures are
// surfaced through the SetOnError callback.
//
// The package is optional at runtime. Connect returns ErrDisabled when
// telemetry is switched off in configuration, and callers run without a
// recorder in that case.
package influxdb
