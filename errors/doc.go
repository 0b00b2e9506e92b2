// Package errors provides standardized error handling patterns for the telemetry agent.
//
// # Overview
//
// Errors are classified into three classes so callers can decide what to do without
// matching on strings:
//
//   - Transient: link down, remote rejection, sensor hiccup, busy sender (retry on a later cycle)
//   - Invalid: malformed payloads, oversize chunks, bad input (do not retry the same input)
//   - Fatal: invalid configuration or resource exhaustion at startup (stop the process)
//
// The dispatch loop never propagates transient or invalid errors; it logs them and carries
// on with the next tick. Only startup code returns fatal errors to main.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions set the classification:
//
//	errors.WrapTransient(err, "Sender", "Send", "post chunk")
//	errors.WrapInvalid(err, "Config", "Validate", "chunk_size")
//	errors.WrapFatal(err, "Agent", "Start", "create ring buffer")
//
// Wrap() adds context without classifying:
//
//	errors.Wrap(err, "Client", "Publish", "publish status")
//
// # Standard Error Variables
//
// Use the package sentinels instead of ad-hoc messages so errors.Is keeps working through
// wrapping chains:
//
//	if s.url == "" {
//	    return errors.ErrNoEndpoint
//	}
package errors
