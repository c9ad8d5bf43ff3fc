// Package session keeps the opaque engine state of client sessions between
// stateless requests and tracks the live session records.
//
// Cache is a two-tier store: a sliding-expiration in-memory tier in front of a
// durable store.StateStore. Lender wraps one engine operation in a
// load/restore/run/save cycle. Manager owns the session records and persists
// them through a store.SessionStore.
package session
