// Package api exposes the subtitle task service over HTTP.
//
// The router is built with chi. Every /api route except health requires an
// X-API-Key header that matches one of the configured clients; keys are
// stored as bcrypt hashes and verified keys are cached by digest so bcrypt
// runs once per key.
//
// Routes:
//
//	POST   /api/tasks                  submit a task
//	GET    /api/tasks                  list the caller's tasks
//	GET    /api/tasks/{id}             task status
//	GET    /api/tasks/{id}/result      result and signed download links
//	POST   /api/tasks/{id}/cancel      cancel a pending or running task
//	DELETE /api/tasks/{id}             remove a terminal task and its files
//	GET    /api/download/{id}/{file}   fetch one artifact (key or token)
//	GET    /api/stats                  queue and quota overview (admin)
//	GET    /api/health                 liveness
//
// Clients only see their own tasks unless they are marked admin. Download
// links carry a short-lived HS256 token so they can be handed to tools that
// cannot set headers.
//
// Wire types use snake_case JSON and RFC3339 timestamps.
package api
