// Package progress carries crawl-run events from the engine to pluggable sinks.
// The Hub batches events on a background goroutine so the crawl loop never
// blocks on logging or metrics.
package progress
