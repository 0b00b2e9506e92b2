// Package httppost sends encoded measurement chunks to the collector over HTTP(S).
//
// # Single flight
//
// A Sender has two states, Idle and Sending. Send moves Idle to Sending, issues the POST on
// its own goroutine and returns at once. When the response arrives, the request fails, or
// the per-request deadline expires, the sender goes back to Idle and then runs exactly one
// callback:
//
//   - success callback for any 2xx status, with the status code and response body
//   - failure callback otherwise, with the status code or StatusNoResponse (-1) and whatever
//     body was read
//
// A Send that cannot be opened (no URL, sender busy, request construction failure, closed
// sender) returns an error, stays Idle and fires no callback. The caller retries on its next
// cycle.
//
// # Request shape
//
//	POST <url>
//	Content-Type: application/json
//	X-Request-ID: <uuid>
//	X-API-Token: <token>                 (when configured)
//	Authorization: Basic base64(u:p)     (when both username and password are set)
//	Content-Encoding: gzip               (when gzip is enabled)
//
// An https URL uses TLS. Config.TLS adds private CAs, a client certificate or, for
// self-signed test collectors, InsecureSkipVerify.
package httppost
