// Package api hosts the HTTP handlers that front the docsplatform REST API v3.
//
// Every resource route is described by a resource.Config and mounted on a
// generic resource.Controller, so parent resolution, permission checks,
// pagination and schema validation run identically everywhere. This package
// supplies the per-resource pieces: how parents resolve and stay hidden, how
// storage is queried and how records are rendered.
//
// Persistence, sessions, the build gateway and the import finisher are
// injected through Options; the package does not reach for globals. Handlers
// assume upstream middleware from internal/server has already resolved the
// caller from the request token and attached it with
// resource.ContextWithCaller.
package api
