package types

// Snapshot is a point-in-time payload pushed by a Store subscription.
//
// It is either a DocumentSnapshot (document descriptors) or a CollectionSnapshot
// (collection descriptors).
type Snapshot interface {
	isSnapshot()
}

// DocumentSnapshot is the pushed state of a single document.
type DocumentSnapshot struct {
	// ID is the document identifier.
	ID string

	// Exists is false when the document was never written or has been deleted.
	Exists bool

	// Fields holds the document content. Nil when Exists is false.
	Fields map[string]any
}

func (DocumentSnapshot) isSnapshot() {}

// CollectionSnapshot is the pushed state of a collection query, in remote order.
//
// Documents deleted since the previous snapshot are reported once with Exists == false.
type CollectionSnapshot struct {
	Docs []DocumentSnapshot
}

func (CollectionSnapshot) isSnapshot() {}

// Record is the projection of a document: its fields plus an "id" key.
type Record map[string]any

// RecordIDKey is the key under which a Record carries the document ID.
const RecordIDKey = "id"

// ID returns the document identifier held by the record.
func (r Record) ID() string {
	id, _ := r[RecordIDKey].(string)
	return id
}
