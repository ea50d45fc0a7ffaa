// Package review implements the per-step comment workflow used when an
// internal reviewer walks an investor's localization plan: the comment phase
// state machine, flagged-field selection, the approve/reject/send-back
// orchestration shared across plan types, and the resubmission gate that
// tracks which flagged fields the investor has corrected.
package review

// FieldRef identifies one reviewable input on a wizard step. RowID is set
// only for inputs inside a repeated row structure (a value-chain line item,
// a shareholder row) and disambiguates otherwise identical (Section,
// InputKey) pairs across rows. A FieldRef is created fresh each time the
// reviewer flags a field and is immutable once attached to a comment.
type FieldRef struct {
	Section  string
	InputKey string
	RowID    string
	Label    string
	Value    string
}

// FieldKey is the identity of a FieldRef used for matching and
// deduplication. Label and Value never participate in identity.
type FieldKey struct {
	Section  string
	InputKey string
	RowID    string
}

// Key returns the identity triplet for the field.
func (f FieldRef) Key() FieldKey {
	return FieldKey{Section: f.Section, InputKey: f.InputKey, RowID: f.RowID}
}

// PageComment is one reviewer comment plus the fields it covers, scoped to a
// single wizard step. At most one PageComment exists per step per review
// pass; editing replaces Text in place, the field set is fixed at save time.
type PageComment struct {
	PageTitle string
	Text      string
	Fields    []FieldRef
}

// IsZero reports whether the comment carries neither text nor fields.
func (c PageComment) IsZero() bool {
	return c.Text == "" && len(c.Fields) == 0
}
