package types

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/arloliu/livequery/internal/hash"
)

// Descriptor identifies what a live query fetches: a single document or a filtered collection.
//
// Descriptors are immutable once constructed. Callers are free to build a new descriptor
// value on every update; two descriptors naming the same logical query must compare equal.
type Descriptor interface {
	// Equal reports whether other denotes the same logical query.
	Equal(other Descriptor) bool

	// String returns a human-readable form used in logs.
	String() string
}

// EqualFunc compares two possibly-nil descriptors.
//
// Implementations must be reflexive, symmetric and stable for descriptors
// denoting the same logical query.
type EqualFunc func(a, b Descriptor) bool

// DescriptorsEqual is the default EqualFunc.
//
// Two nil descriptors are equal; a nil and a non-nil descriptor are not.
// Otherwise it delegates to a.Equal(b).
func DescriptorsEqual(a, b Descriptor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.Equal(b)
}

// DocumentRef names a single document inside a collection.
type DocumentRef struct {
	// Collection is the collection (namespace) holding the document.
	Collection string `json:"collection"`

	// ID is the document identifier within the collection.
	ID string `json:"id"`
}

var _ Descriptor = DocumentRef{}

// Doc returns a reference to the document id in collection.
func Doc(collection, id string) DocumentRef {
	return DocumentRef{Collection: collection, ID: id}
}

// Equal reports whether other references the same document.
func (r DocumentRef) Equal(other Descriptor) bool {
	switch o := other.(type) {
	case DocumentRef:
		return r == o
	case *DocumentRef:
		return o != nil && r == *o
	default:
		return false
	}
}

// String returns "collection/id".
func (r DocumentRef) String() string {
	return r.Collection + "/" + r.ID
}

// Validate checks that both parts of the reference are set.
//
// Returns:
//   - error: ErrInvalidDescriptor wrapped with details, or nil
func (r DocumentRef) Validate() error {
	if r.Collection == "" {
		return fmt.Errorf("%w: document collection is empty", ErrInvalidDescriptor)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidDescriptor)
	}

	return nil
}

// Op is a filter comparison operator.
type Op string

const (
	// OpEqual matches documents whose field equals the filter value.
	OpEqual Op = "=="

	// OpNotEqual matches documents whose field is present and differs from the filter value.
	OpNotEqual Op = "!="
)

// Filter is a single field predicate of a collection query.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// canonical returns the filter encoded so that semantically equal filters
// produce identical strings (values are compared through their JSON form,
// so 5 and 5.0 are the same value).
func (f Filter) canonical() string {
	return f.Field + string(f.Op) + canonicalValue(f.Value)
}

// Matches reports whether a document's fields satisfy the filter.
func (f Filter) Matches(fields map[string]any) bool {
	v, ok := fields[f.Field]
	switch f.Op {
	case OpEqual:
		return ok && canonicalValue(v) == canonicalValue(f.Value)
	case OpNotEqual:
		return ok && canonicalValue(v) != canonicalValue(f.Value)
	default:
		return false
	}
}

// CollectionQuery names a filtered view over a collection.
//
// Filters are combined with AND; their order is not significant for equality.
// A zero Limit means unlimited.
type CollectionQuery struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

var _ Descriptor = CollectionQuery{}

// Collection returns an unfiltered query over collection.
func Collection(collection string) CollectionQuery {
	return CollectionQuery{Collection: collection}
}

// Where returns a copy of q with an additional filter.
//
// Example:
//
//	q := types.Collection("items").Where("type", types.OpEqual, "a")
func (q CollectionQuery) Where(field string, op Op, value any) CollectionQuery {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	filters = append(filters, Filter{Field: field, Op: op, Value: value})
	q.Filters = filters

	return q
}

// WithLimit returns a copy of q limited to n documents.
func (q CollectionQuery) WithLimit(n int) CollectionQuery {
	q.Filters = slices.Clone(q.Filters)
	q.Limit = n

	return q
}

// Equal reports whether other is the same collection with the same filter set and limit.
func (q CollectionQuery) Equal(other Descriptor) bool {
	var o CollectionQuery
	switch v := other.(type) {
	case CollectionQuery:
		o = v
	case *CollectionQuery:
		if v == nil {
			return false
		}
		o = *v
	default:
		return false
	}

	if q.Collection != o.Collection || q.Limit != o.Limit || len(q.Filters) != len(o.Filters) {
		return false
	}

	return slices.Equal(q.canonicalFilters(), o.canonicalFilters())
}

// Fingerprint returns a stable 64-bit hash of the canonical query.
//
// Equal queries always have equal fingerprints.
func (q CollectionQuery) Fingerprint() uint64 {
	parts := make([]string, 0, len(q.Filters)+2)
	parts = append(parts, q.Collection, strconv.Itoa(q.Limit))
	parts = append(parts, q.canonicalFilters()...)

	return hash.Fingerprint(parts...)
}

// Matches reports whether a document's fields satisfy every filter.
func (q CollectionQuery) Matches(fields map[string]any) bool {
	for _, f := range q.Filters {
		if !f.Matches(fields) {
			return false
		}
	}

	return true
}

// String returns a readable form such as `items[type=="a"]`.
func (q CollectionQuery) String() string {
	var sb strings.Builder
	sb.WriteString(q.Collection)
	if len(q.Filters) > 0 {
		sb.WriteByte('[')
		sb.WriteString(strings.Join(q.canonicalFilters(), ","))
		sb.WriteByte(']')
	}
	if q.Limit > 0 {
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}

	return sb.String()
}

// Validate checks the query is well formed.
func (q CollectionQuery) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is empty", ErrInvalidDescriptor)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidDescriptor, q.Limit)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter with empty field", ErrInvalidDescriptor)
		}
		if f.Op != OpEqual && f.Op != OpNotEqual {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidDescriptor, f.Op)
		}
	}

	return nil
}

func (q CollectionQuery) canonicalFilters() []string {
	out := make([]string, len(q.Filters))
	for i, f := range q.Filters {
		out[i] = f.canonical()
	}
	slices.Sort(out)

	return out
}

// canonicalValue encodes v as JSON. encoding/json sorts map keys, which makes the
// encoding canonical for the value shapes documents can hold.
func canonicalValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}

	return string(b)
}
