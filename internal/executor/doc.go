// Package executor defines the contract between the batch orchestrator and the
// external report engine, along with the helpers that shape engine input
// (composed filter expressions) and engine output (OXT lines and metadata).
package executor
