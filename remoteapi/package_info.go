// Package remoteapi carries backend calls over HTTP.
//
// Server exposes any apiproxy.Delegate, and Client is an apiproxy.Delegate that talks to such a
// server. The protocol is deliberately small:
//
//	POST /calls/{service}/{method}   body: encoded request; response body: encoded response
//	POST /log                        body: JSON log record
//	GET  /logs                       server-sent event stream of log records
//	GET  /  (or HEAD /)              status, used as the reachability probe
//
// The caller's environment travels in the X-Harness-Environment header as base64-encoded JSON.
// Failures are returned with a non-2xx status and a JSON error envelope, which the client turns
// back into *apiproxy.ApplicationError or *apiproxy.CallNotFoundError.
package remoteapi
