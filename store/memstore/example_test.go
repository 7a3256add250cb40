package memstore_test

import (
	"context"
	"fmt"

	"github.com/arloliu/livequery"
	"github.com/arloliu/livequery/store/memstore"
)

func Example() {
	ctx := context.Background()
	store := memstore.New()
	_ = store.Write(ctx, livequery.Doc("users", "u1"), "name", "ada")

	client, err := livequery.NewClient(store)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	q := client.Query(livequery.WithDescriptor(livequery.Doc("users", "u1")))
	defer q.Close()

	state, err := q.Wait(ctx, livequery.State.IsSuccess)
	if err != nil {
		fmt.Println(err)
		return
	}
	rec, _ := state.Record()
	fmt.Println(rec.ID(), rec["name"])
	// Output: u1 ada
}
