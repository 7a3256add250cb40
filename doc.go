// Package livequery keeps local state synchronized with a remote document store that
// pushes live updates.
//
// A Query turns a query descriptor into a stream of lifecycle states (idle, loading,
// success, error). Callers may pass a freshly built descriptor on every update: an
// equality gate absorbs descriptors equal to the previous one, so the underlying
// subscription is only replaced when the query really changes. A Backed value layers
// a local default and a persisted backup underneath a live document field, and can
// run with the remote leg disabled entirely.
//
// # Quick Start
//
//	store, _ := natskv.New(ctx, nc, natskv.Config{Bucket: "docs"})
//	client, _ := livequery.NewClient(store, livequery.WithLogger(logger))
//
//	q := client.Query(livequery.WithDescriptor(livequery.Doc("users", "u1")))
//	defer q.Close()
//
//	ch, unsubscribe := q.Subscribe()
//	defer unsubscribe()
//	for state := range ch {
//	    if rec, ok := state.Record(); ok {
//	        fmt.Println(rec)
//	    }
//	}
//
// # Re-rendering
//
// Update is the equivalent of re-rendering with new inputs:
//
//	q.Update(livequery.Collection("items").Where("type", livequery.OpEqual, "a"), false)
//	q.Update(livequery.Collection("items").Where("type", livequery.OpEqual, "a"), false) // no resubscribe
//	q.Update(nil, false)                                                                  // back to idle
//
// Snapshots from a superseded subscription are discarded, so a late delivery can
// never overwrite the state of the current descriptor.
//
// # Backed values
//
//	levels, _ := livequery.NewBacked(client, livequery.BackedConfig[map[string]int]{
//	    Path:      "%ID%",
//	    Namespace: "hero-list",
//	    Field:     "levels",
//	    Default:   map[string]int{},
//	    Backup:    badgerBackup,
//	})
//	levels.Set(map[string]int{"hero-1": 3}) // local now, remote in the background
//
// See the examples/ directory for complete working examples.
package livequery
