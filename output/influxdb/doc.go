// Package influxdb writes measurements to an InfluxDB v2 bucket over the HTTP write API.
//
// Measurements are rendered as line protocol, one point per sample:
//
//	current value=123.4 1718000000000
//
// and posted to /api/v2/write with millisecond precision. The collector uses a Writer as
// its primary forwarder.
package influxdb
