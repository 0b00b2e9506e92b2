// Package health tracks component health and builds the agent's periodic status report.
//
// # Component health
//
// A Monitor holds one Status per component. Components either push their state with
// Update (for example the startup clock check) or register a Check that is evaluated
// whenever the aggregate is requested:
//
//	monitor := health.NewMonitor("currentlogger")
//	monitor.Register("pubsub", func() health.Status {
//	    if client.IsConnected() {
//	        return health.Healthy("pubsub", "connected")
//	    }
//	    return health.Degraded("pubsub", "reconnecting")
//	})
//	http.Handle("/health", monitor.Handler())
//
// The aggregate is unhealthy if any component is unhealthy, degraded if any is degraded,
// healthy otherwise. The handler answers 503 for an unhealthy aggregate.
//
// Messages built from errors are sanitized so URLs, paths, addresses and credentials do
// not leak into health output.
//
// # Status report
//
// A Reporter snapshots runtime memory, goroutines, uptime, ring buffer occupancy, sender
// state and dispatch counters into a Report. Report logs the human-readable form and, when
// a publisher is configured, publishes the JSON form on the status topic.
package health
