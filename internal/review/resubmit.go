package review

// ValueSource resolves a flagged field against the investor's current edits
// and against the values committed at the last review pass. The second
// return reports whether the field could be resolved at all.
type ValueSource interface {
	Value(ref FieldRef) (string, bool)
	OriginalValue(ref FieldRef) (string, bool)
}

// DiffEngine gates investor resubmission: every field flagged by the
// reviewer must have received a corrective edit before the plan may go back
// under review. The engine is derived state, recomputed on demand and never
// persisted; only the final comment payload ships on resubmit.
type DiffEngine struct {
	mode    Mode
	flagged []PageComment
	source  ValueSource
}

// NewDiffEngine builds the engine from the reviewer's prior per-step
// comments and the live field source.
func NewDiffEngine(mode Mode, flagged []PageComment, source ValueSource) *DiffEngine {
	return &DiffEngine{mode: mode, flagged: flagged, source: source}
}

// fieldCorrected reports whether one flagged field has been edited: its
// current value must resolve and differ from the committed original. A field
// that cannot be resolved in the current response still requires update.
func (e *DiffEngine) fieldCorrected(ref FieldRef) bool {
	current, ok := e.source.Value(ref)
	if !ok {
		return false
	}
	original, ok := e.source.OriginalValue(ref)
	if !ok {
		return false
	}
	return current != original
}

// RemainingFieldsRequiringUpdate counts the flagged fields across all steps
// that still need a corrective edit. Outside resubmit mode the count is
// vacuously zero.
func (e *DiffEngine) RemainingFieldsRequiringUpdate() int {
	if e.mode != ModeResubmit {
		return 0
	}
	remaining := 0
	for _, comment := range e.flagged {
		for _, field := range comment.Fields {
			if !e.fieldCorrected(field) {
				remaining++
			}
		}
	}
	return remaining
}

// CanInvestorSubmit is the hard resubmission gate: true only in resubmit
// mode with zero fields still requiring update. The caller must refuse, not
// merely discourage, submission while this is false.
func (e *DiffEngine) CanInvestorSubmit() bool {
	return e.mode == ModeResubmit && e.RemainingFieldsRequiringUpdate() == 0
}

// BuildResubmissionComments assembles the outgoing comment payload.
// newComments carries any remarks the investor typed, keyed by page title.
// Per step: when the investor left a new comment and has corrected fields,
// the new text ships with exactly those fields; otherwise the employee's
// original comment is re-emitted with an empty comment string and the
// original field list, preserving the audit trail of what was flagged. Both
// branches are deliberate policy.
func (e *DiffEngine) BuildResubmissionComments(newComments map[string]string) []PageComment {
	out := make([]PageComment, 0, len(e.flagged))
	for _, original := range e.flagged {
		corrected := make([]FieldRef, 0, len(original.Fields))
		for _, field := range original.Fields {
			if e.fieldCorrected(field) {
				updated := field
				if current, ok := e.source.Value(field); ok {
					updated.Value = current
				}
				corrected = append(corrected, updated)
			}
		}
		newText := newComments[original.PageTitle]
		if newText != "" && len(corrected) > 0 {
			out = append(out, PageComment{
				PageTitle: original.PageTitle,
				Text:      newText,
				Fields:    corrected,
			})
			continue
		}
		out = append(out, PageComment{
			PageTitle: original.PageTitle,
			Text:      "",
			Fields:    original.Fields,
		})
	}
	return out
}
