// Package memo stabilizes referentially-new but semantically-equal inputs.
package memo

// Memo retains the previous input and returns it in place of an equal new one.
//
// Consumers that compare their input by identity (for instance "did the descriptor
// change?") see a stable value for as long as the caller keeps passing equivalent
// inputs, even when every input is a freshly built value.
//
// The zero value is ready to use. A Memo is not safe for concurrent use; the owner
// serializes calls.
type Memo[T any] struct {
	prev T
	set  bool
}

// Compare returns the retained value when isEqual reports it equivalent to current,
// and otherwise retains and returns current.
//
// isEqual is never called on the first invocation since there is no previous value.
//
// Parameters:
//   - current: The new input
//   - isEqual: Equivalence predicate, called as isEqual(previous, current)
//
// Returns:
//   - T: The previous value when equivalent, else current
//
// Example:
//
//	var m memo.Memo[types.Descriptor]
//	stable := m.Compare(desc, types.DescriptorsEqual)
func (m *Memo[T]) Compare(current T, isEqual func(previous, current T) bool) T {
	v, _ := m.CompareChanged(current, isEqual)
	return v
}

// CompareChanged is Compare that also reports whether the retained value was replaced.
//
// The report stands in for an identity check on the result, which is not
// available for values whose dynamic type is not comparable.
func (m *Memo[T]) CompareChanged(current T, isEqual func(previous, current T) bool) (T, bool) {
	if m.set && isEqual(m.prev, current) {
		return m.prev, false
	}

	m.prev = current
	m.set = true

	return current, true
}

// Reset drops the retained value; the next Compare behaves like the first one.
func (m *Memo[T]) Reset() {
	var zero T
	m.prev = zero
	m.set = false
}
