// Package projection converts store snapshots into the plain records held by
// query state.
package projection

import (
	"maps"

	"github.com/arloliu/livequery/types"
)

// Project converts a snapshot into query data.
//
// A DocumentSnapshot becomes a types.Record, or nil when the document does not
// exist. A CollectionSnapshot becomes a []types.Record in snapshot order, with nil
// entries for documents that do not exist. Any other value yields nil.
//
// Field maps are shallow-copied, and the record's "id" key always holds the
// document ID even when the document has a field named "id".
//
// Example:
//
//	rec := Project(types.DocumentSnapshot{ID: "X", Exists: true, Fields: map[string]any{"a": 1}})
//	// rec == types.Record{"id": "X", "a": 1}
func Project(s types.Snapshot) any {
	switch snap := s.(type) {
	case types.DocumentSnapshot:
		if rec := Document(snap); rec != nil {
			return rec
		}

		return nil
	case *types.DocumentSnapshot:
		if snap == nil {
			return nil
		}

		return Project(*snap)
	case types.CollectionSnapshot:
		return Collection(snap)
	case *types.CollectionSnapshot:
		if snap == nil {
			return nil
		}

		return Collection(*snap)
	default:
		return nil
	}
}

// Document projects a single document; it returns nil when the document does not exist.
func Document(doc types.DocumentSnapshot) types.Record {
	if !doc.Exists {
		return nil
	}

	rec := make(types.Record, len(doc.Fields)+1)
	maps.Copy(rec, doc.Fields)
	rec[types.RecordIDKey] = doc.ID

	return rec
}

// Collection projects every document of a collection snapshot, preserving order.
func Collection(snap types.CollectionSnapshot) []types.Record {
	out := make([]types.Record, len(snap.Docs))
	for i, doc := range snap.Docs {
		out[i] = Document(doc)
	}

	return out
}
