// Package stores provides the SQLite-backed in-flight resource ledger.
//
// The ledger mirrors every run's resource tracker on disk so resources
// created by a process that dies mid-deployment can still be found and
// removed. Rows exist only while a run is in flight or while a resource its
// rollback failed to delete is still out there; no deployment history is
// kept.
//
// The database uses the pure-Go modernc.org/sqlite driver in WAL mode and is
// migrated with golang-migrate from embedded SQL files.
package stores
