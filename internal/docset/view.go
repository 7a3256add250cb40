// Package docset maintains the visible result set of a collection query as
// individual document changes arrive.
package docset

import (
	"maps"
	"slices"

	"github.com/arloliu/livequery/types"
)

// View tracks every document of one collection and derives the snapshot a
// CollectionQuery sees: matching documents ordered by ID, cut at the query limit.
//
// View is not safe for concurrent use; each subscription owns its own View.
type View struct {
	query   types.CollectionQuery
	docs    map[string]map[string]any
	visible map[string]struct{}
}

// New creates an empty view for q.
func New(q types.CollectionQuery) *View {
	return &View{
		query:   q,
		docs:    make(map[string]map[string]any),
		visible: make(map[string]struct{}),
	}
}

// Load records a document without producing a snapshot. Used while replaying
// the initial content of a collection.
func (v *View) Load(id string, fields map[string]any) {
	v.docs[id] = fields
}

// Snapshot returns the current result set and marks it as the last one delivered.
func (v *View) Snapshot() types.CollectionSnapshot {
	docs := v.evaluate()
	v.remember(docs)

	return types.CollectionSnapshot{Docs: docs}
}

// Apply records a change to document id and returns the resulting snapshot.
//
// A nil fields map means the document was deleted. When the deleted document was
// part of the previously delivered result it is appended once as a tombstone
// (Exists == false).
//
// Returns:
//   - types.CollectionSnapshot: The result after the change
//   - bool: false when the change cannot affect the result, in which case no
//     snapshot should be delivered
func (v *View) Apply(id string, fields map[string]any) (types.CollectionSnapshot, bool) {
	_, wasVisible := v.visible[id]

	if fields == nil {
		delete(v.docs, id)
	} else {
		v.docs[id] = fields
	}

	docs := v.evaluate()
	nowVisible := slices.ContainsFunc(docs, func(d types.DocumentSnapshot) bool { return d.ID == id })
	if !wasVisible && !nowVisible {
		return types.CollectionSnapshot{}, false
	}

	v.remember(docs)
	if fields == nil && wasVisible {
		docs = append(docs, types.DocumentSnapshot{ID: id})
	}

	return types.CollectionSnapshot{Docs: docs}, true
}

// Len returns the number of tracked documents, matching or not.
func (v *View) Len() int {
	return len(v.docs)
}

func (v *View) evaluate() []types.DocumentSnapshot {
	ids := slices.Sorted(maps.Keys(v.docs))

	docs := make([]types.DocumentSnapshot, 0, len(ids))
	for _, id := range ids {
		fields := v.docs[id]
		if !v.query.Matches(fields) {
			continue
		}
		docs = append(docs, types.DocumentSnapshot{ID: id, Exists: true, Fields: maps.Clone(fields)})
		if v.query.Limit > 0 && len(docs) == v.query.Limit {
			break
		}
	}

	return docs
}

func (v *View) remember(docs []types.DocumentSnapshot) {
	clear(v.visible)
	for _, d := range docs {
		v.visible[d.ID] = struct{}{}
	}
}
