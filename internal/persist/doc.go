// Package persist keeps whitelisted store slices across process restarts.
//
// A Persistor reads the snapshot stored under "persist:<key>" once at
// startup and dispatches it as a REHYDRATE action; WrapReducer merges that
// action into the root state. Ready is closed afterwards. From then on the
// Persistor observes the store and a single writer goroutine saves the
// whitelisted slices whenever one of them changes.
//
// Snapshots are JSON documents:
//
//	{"version":1,"slices":{"auth":{...},"miscellaneous":{...}}}
//
// A snapshot with a different version is discarded and the session starts
// from initial state.
//
// The Journal is an append-only log of every reduced action, stored in the
// SQLite database next to the snapshot. Ordering uses the store's logical
// sequence numbers, never wall time.
//
// Backends: SQLiteStorage (default, mattn/go-sqlite3), RedisStorage
// (go-redis), MemoryStorage and NoopStorage.
package persist
