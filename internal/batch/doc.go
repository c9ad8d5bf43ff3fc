// Package batch runs batches of named reports in the background.
//
// A Service creates a Job in the Registry and starts one goroutine per batch.
// The goroutine runs either the sequential runner (one engine, items in
// order) or the parallel runner (a bounded pool, one engine per item).
// Clients poll the job by id until it reports completion; the first poll
// that observes completion consumes the job. Cancellation is cooperative:
// items already running finish, items not yet started stay waiting.
package batch
