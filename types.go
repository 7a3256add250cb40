package livequery

import (
	"github.com/arloliu/livequery/internal/projection"
	"github.com/arloliu/livequery/types"
)

// Re-export types from the types package.
//
// This file provides the public API for the library's core types and interfaces.
// It uses type aliases to re-export definitions from the `types` subpackage, which
// store implementations depend on without depending on the root package.
type (
	State  = types.State
	Status = types.Status

	Descriptor      = types.Descriptor
	EqualFunc       = types.EqualFunc
	DocumentRef     = types.DocumentRef
	CollectionQuery = types.CollectionQuery
	Filter          = types.Filter
	Op              = types.Op

	Snapshot           = types.Snapshot
	DocumentSnapshot   = types.DocumentSnapshot
	CollectionSnapshot = types.CollectionSnapshot
	Record             = types.Record
)

// Re-export interfaces from the types package for convenience.
type (
	Store            = types.Store
	BackupStore      = types.BackupStore
	Unsubscribe      = types.Unsubscribe
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export Status constants.
const (
	StatusIdle    = types.StatusIdle
	StatusLoading = types.StatusLoading
	StatusSuccess = types.StatusSuccess
	StatusError   = types.StatusError
)

// Re-export filter operators.
const (
	OpEqual    = types.OpEqual
	OpNotEqual = types.OpNotEqual
)

// Doc returns a reference to the document id in collection.
func Doc(collection, id string) DocumentRef {
	return types.Doc(collection, id)
}

// Collection returns an unfiltered query over collection.
func Collection(collection string) CollectionQuery {
	return types.Collection(collection)
}

// DescriptorsEqual is the default descriptor equality predicate.
func DescriptorsEqual(a, b Descriptor) bool {
	return types.DescriptorsEqual(a, b)
}

// Project converts a snapshot into the data a query holds in its success state.
//
// A DocumentSnapshot becomes a Record ({"id": ID, ...fields}) or nil when the
// document does not exist; a CollectionSnapshot becomes a []Record in order, with
// nil entries for documents that do not exist.
func Project(s Snapshot) any {
	return projection.Project(s)
}
