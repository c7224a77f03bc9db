// Package loader provides progressive image loading for a zoomable canvas:
// per-image task state, debounced and rate-limited high-resolution fetches,
// a bounded binary cache, zoom-driven source selection and memory governance.
// It is structured into small files by concern:
//
//   - loader.go: core Loader type, constructor, Close and simple getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: task state, priorities, source types and the Image descriptor.
//   - errors.go: sentinel errors and helpers (IsTaskNotFound, IsInvalidArgument).
//   - cache.go: BinaryCache keyed by source URL, releasing evicted handles.
//   - inflight.go: InFlightRegistry used to deduplicate fetches per URL.
//   - tasks.go: Register/Cancel/MarkLeftViewport/ForceImmediate (task store).
//   - schedule.go: start delay, concurrency cap, pending queue, fetch completion.
//   - selector.go: thumbnail/original decision and debounced scale commits.
//   - estimate.go: Estimator implementations (size hint, URL dimensions).
//   - memory.go: memory estimate and ReleaseUnused downgrades.
//   - notify.go: keyed change listeners delivered outside the loader lock.
//   - events.go: EventPublisher and the in-memory publisher used by tests.
//   - metrics.go: Prometheus collectors.
//   - status_report.go: Status snapshot for the HTTP layer.
//
// All task and cache mutation happens under a single mutex. Suspension points
// are the start delay, the fetch itself and the duplicate-URL recheck; every
// callback re-validates that its task still exists before mutating it.
package loader
