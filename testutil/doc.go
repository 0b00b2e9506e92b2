// Package testutil holds shared test doubles and fixtures: an in-memory broker that
// stands in for natsclient.Client and a NATS container for integration tests.
package testutil
