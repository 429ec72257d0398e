// Package api exposes the orchestrator over a JSON HTTP API.
//
// Routes:
//
//	POST /api/v1/chat   answer one learner turn
//	POST /api/v1/title  generate a session title from the first question
//	GET  /health        liveness probe
//	GET  /ready         readiness probe (checks the database pool)
//
// Health probes sit outside the middleware stack so probes are never
// logged or recovered through the request pipeline.
package api
