// Package gateway is the collector's HTTP API. Agents post measurement batches here, and
// the gateway checks each batch, forwards it, and fans it out to live viewers.
//
// Routes:
//
//	POST /api/v1/data   X-API-Token required; body {"measurements":[{"timestamp":ms,"value":mA}]}
//	GET  /api/v1/live   websocket feed of accepted batches (token via header or ?token=)
//	GET  /health        aggregate health, no token
//
// A request is answered 401 when the token is missing, 403 when it does not match,
// 400 "Invalid payload" when the body fails the batch schema, 413 past the size limit
// and 500 when any forwarder fails. Gzip request bodies are accepted.
//
// Forwarders run concurrently per batch. The InfluxDB writer is always present; a
// JetStream forwarder is added when a stream is configured.
package gateway
