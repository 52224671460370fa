// Package server hosts the docs platform API behind a single HTTP server.
//
// The server wraps the API handler in one middleware chain: request ids,
// request logging, metrics, security headers, CORS, token authentication,
// audit logging and throttling. /metrics is served next to the API.
package server
