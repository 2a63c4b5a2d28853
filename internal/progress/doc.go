// Package progress carries harvest job and fetch milestones from the
// orchestrator and fetchers to pluggable sinks. A Hub batches events on a
// background goroutine so emitters never block.
package progress
