// Package catalog defines the persisted shapes of the crawl: catalog items pulled
// from the remote listing, enriched records for items confirmed to be of the target
// type, and the small crawl state that survives restarts. Storage backends live in
// internal/storage and satisfy the Store interface declared here.
package catalog
