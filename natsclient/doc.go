// Package natsclient manages the agent's NATS connection.
//
// The connection is opened once at startup by Connect, which retries with backoff until
// the server answers or the attempts run out. After that nats.go reconnects on its own;
// the client tracks the link state through the connection handlers.
//
// Publishing is at most once. The reconnect buffer is disabled, so Publish while the link
// is down fails immediately with ErrNotConnected and the caller drops the message:
//
//	client, _ := natsclient.NewClient("nats://broker:4222",
//	    natsclient.WithName("currentlogger-esp-lab-1"),
//	    natsclient.WithLogger(logger))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	if err := client.Publish(ctx, "esp-lab-1/status", data); err != nil {
//	    logger.Warn("status dropped", "error", err)
//	}
//
// The collector uses the JetStream helpers, EnsureStream and PublishToStream, to keep
// accepted batches in a stream for downstream consumers.
package natsclient
