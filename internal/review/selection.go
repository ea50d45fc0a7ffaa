package review

// Selection tracks the fields flagged by the reviewer during the active
// comment composition on one step. Membership is keyed by FieldKey so a
// row-scoped field never collides with a singleton field sharing the same
// input key. Insertion order is preserved for the committed field list.
type Selection struct {
	fields []FieldRef
	index  map[FieldKey]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{index: make(map[FieldKey]struct{})}
}

// Toggle adds the field when selected is true (unless an entry with the same
// identity is already tracked) and removes the matching entry when selected
// is false. Repeated identical toggles are idempotent.
func (s *Selection) Toggle(selected bool, field FieldRef) {
	key := field.Key()
	if selected {
		if _, ok := s.index[key]; ok {
			return
		}
		s.index[key] = struct{}{}
		s.fields = append(s.fields, field)
		return
	}
	if _, ok := s.index[key]; !ok {
		return
	}
	delete(s.index, key)
	for i, tracked := range s.fields {
		if tracked.Key() == key {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			break
		}
	}
}

// Contains reports whether a tracked entry matches inputKey and, when rowID
// is non-empty, also matches rowID.
func (s *Selection) Contains(inputKey, rowID string) bool {
	for _, field := range s.fields {
		if field.InputKey != inputKey {
			continue
		}
		if rowID != "" && field.RowID != rowID {
			continue
		}
		return true
	}
	return false
}

// Fields returns a copy of the tracked fields in insertion order.
func (s *Selection) Fields() []FieldRef {
	out := make([]FieldRef, len(s.fields))
	copy(out, s.fields)
	return out
}

// Count returns the number of tracked fields.
func (s *Selection) Count() int {
	return len(s.fields)
}

// clear is invoked only by the phase transitions that own the selection
// lifecycle; it is deliberately unexported so the flagged set cannot diverge
// from the phase.
func (s *Selection) clear() {
	s.fields = s.fields[:0]
	for key := range s.index {
		delete(s.index, key)
	}
}
