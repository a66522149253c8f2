// Package internal contains the implementation packages for docfeat.
//
// # Package Organization
//
//   - registry: generic provider registry with document-selector scoring
//   - document: text documents, positions and document selectors
//   - features: hover, definition and diagnostics registries plus the merger
//   - session: grouped registrations disposed together
//   - manifest: static providers declared in a YAML file
//   - watcher: fsnotify watching with debouncing and manifest hot reload
//   - transport: WebSocket protocol for remote extension hosts
//   - server: HTTP query API, health and metrics endpoints
//   - metrics: Prometheus collectors and HTTP instrumentation
//   - config, logging, errors, version: ambient support
//
// # Inter-Package Communication
//
// Every provider, whether it comes from the manifest or a connected
// extension host, ends up in one of the feature registries. Queries go
// through the merger, which asks every provider whose selector matches the
// document and combines their answers. Registry change notifications drive
// the metrics gauges and the transport's provider listings.
package internal
