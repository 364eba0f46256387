/*
Package memory provides in-memory store implementations for tests and
development. State lives in maps; WithTx snapshots the maps and restores
them if the unit of work fails, giving the same all-or-nothing semantics as
the SQLite store. Not safe for concurrent writers; engine tests are
single-goroutine.
*/
package memory

import "time"

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
