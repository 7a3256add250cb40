// Package natskv implements a live document store on a NATS JetStream KeyValue bucket.
//
// Documents are JSON objects stored under the key "<collection>.<id>" in a single
// bucket. Subscriptions are KV watchers: a DocumentRef watches its exact key and a
// CollectionQuery watches "<collection>.*", filtering, ordering and limiting the
// documents locally. Writes merge a single field into the stored object using
// revision-checked updates, retrying with jittered backoff when another writer
// raced ahead.
//
// Example:
//
//	store, err := natskv.New(ctx, nc, natskv.DefaultConfig(),
//	    natskv.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	client, err := livequery.NewClient(store)
package natskv
