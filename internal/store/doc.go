// Package store persists posts.
//
// The engine and the HTTP API only see the Store interface; the backend is
// selected by config:
//
//   - "memory":   in-process map, lost on restart (tests, demos)
//   - "file":     JSON-lines journal + periodic snapshot, dependency-free
//   - "sqlite":   single-file SQLite database (modernc, no cgo)
//   - "postgres": shared PostgreSQL database
//
// All backends hand out deep copies; mutating a returned post does not
// change stored state until Upsert is called.
package store
