// Package server exposes a Driver over HTTP.
//
// # Endpoints
//
//   - GET    /health                         - liveness and catalog size
//   - GET    /metrics                        - Prometheus metrics
//   - GET    /api/v1/info                    - component information
//   - GET    /api/v1/descriptors             - all descriptors, or ?id=... to look up a set
//   - POST   /api/v1/descriptors/rescan      - re-read the projects directory
//   - GET    /api/v1/descriptors/{id}        - one descriptor
//   - POST   /api/v1/tasks                   - submit a task (body: task configuration)
//   - GET    /api/v1/tasks                   - outcomes of all known tasks
//   - GET    /api/v1/tasks/{id}              - outcome of one task
//   - GET    /api/v1/tasks/{id}/progress     - progress snapshot
//   - GET    /api/v1/tasks/{id}/result       - current or final result tree
//   - DELETE /api/v1/tasks/{id}              - cancel a task
//
// Outcomes and results of tasks that are no longer in the driver's registry
// are served from the object store.
package server
