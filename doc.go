// Package stash provides a disk-backed key/value store for typed blobs under
// per-store and aggregate byte budgets, evicting least recently used entries
// when a write would exceed a budget.
//
// Entries live at <root>/<store>/<key><ext>, one file per (key, kind):
//
//	reg, _ := stash.NewRegistry(stash.WithAggregateBudget(50 << 20))
//	defer reg.Close()
//
//	avatars, err := reg.Open("avatars", stash.WithBudget(5 << 20))
//	if errors.Is(err, stash.ErrDuplicateStoreName) {
//	    // still usable; shares its directory with the other "avatars"
//	}
//
//	// Raw bytes under an explicit kind
//	avatars.Put("alice", stash.KindPNG, pngBytes)
//	entry, _ := avatars.Get("alice") // tries jpg, png, mp4, mp3, txt
//
//	// Typed payloads through the codec
//	avatars.Save("prefs", stash.Value{Value: []any{"dark", 14}})
//	p, _ := avatars.Load("prefs")
//
//	// Maintenance
//	size, _ := avatars.Size()
//	avatars.Delete("alice")   // removes one kind per call
//	avatars.DeleteStore()     // removes the store directory
//	reg.Cleanup()             // removes empty store directories
//	reg.DeleteEverything()    // removes the root
//
// A write that does not fit evicts the least recently used files of the
// store, then of the whole root, and fails with ErrFileTooLarge when the
// entry alone reaches a budget, or with an *EvictionError when eviction
// could not make enough room.
//
// Stores can be mirrored to an OCI registry:
//
//	avatars.Push(ctx, "ghcr.io/acme/cache/avatars:main")
//	avatars.Pull(ctx, "ghcr.io/acme/cache/avatars:main")
package stash
