// Package crawler implements the catalog crawl engine: list synchronization, the
// name pre-filter hook, detail fetch outcomes, classification and persistence, and
// the single-worker driver loop with pacing and rate-limit cooldowns.
//
// The engine is strictly sequential. At most one detail request is in flight, so
// the consecutive-failure counter reflects the remote service's behavior rather
// than local concurrency.
package crawler
