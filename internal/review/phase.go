package review

// Phase is the per-step comment composition state.
//
//	none:    no active comment, flag checkboxes hidden
//	adding:  composing a brand-new comment, checkboxes enabled
//	editing: revising the text of a saved comment
//	viewing: comment saved and displayed, step inputs disabled
type Phase string

const (
	PhaseNone    Phase = "none"
	PhaseAdding  Phase = "adding"
	PhaseEditing Phase = "editing"
	PhaseViewing Phase = "viewing"
)

// Composing reports whether the phase allows the comment text to change.
func (p Phase) Composing() bool {
	return p == PhaseAdding || p == PhaseEditing
}

// Mode is the wizard mode the hosting plan is open in. Only ModeResubmit
// activates the resubmission diff gate.
type Mode string

const (
	ModeCreate   Mode = "create"
	ModeEdit     Mode = "edit"
	ModeView     Mode = "view"
	ModeReview   Mode = "review"
	ModeResubmit Mode = "resubmit"
)
