// Package environment holds the registry of SDK environment records.
//
// The Store is the single shared mutable resource of envmgr. Every
// component (scanner, manifest fetcher, install pipeline, remove flow)
// publishes its state changes as Patch upserts; the Store merges them
// field by field, keeps the records ordered newest-first and hands a
// copy of the full list to every observer after each mutation.
//
// # Merge semantics
//
// A Patch only carries the fields it sets. Nil pointers leave the
// existing value untouched, so two components updating different fields
// of the same record never overwrite each other:
//
//	store.Upsert(&environment.Patch{Version: "1.0", Progress: environment.Int(10)})
//	store.Upsert(&environment.Patch{Version: "1.0", IsRemoving: environment.Bool(true)})
//	// record 1.0 now has Progress=10 and IsRemoving=true
//
// Read-modify-write sequences go through Update, which runs the callback
// under the store lock.
//
// # In-process gate
//
// Begin/TryBegin return a Guard that raises the global in-process flag
// and the record's IsInProcess flag. Guard.End is idempotent and is meant
// to be deferred so the flags are cleared on every exit path.
package environment
