package review

import (
	"errors"
	"strings"
)

// MaxCommentLen is the longest comment text accepted on save, matching the
// column width of the persisted comment.
const MaxCommentLen = 255

// Validation failures surfaced when a save is refused. Each maps to its own
// user-visible message; the phase never advances on any of them.
var (
	ErrNoFieldsSelected = errors.New("Please select at least one field before adding a comment.")
	ErrEmptyComment     = errors.New("Comment cannot be empty.")
	ErrCommentTooLong   = errors.New("Comment must not exceed 255 characters.")
	ErrPhase            = errors.New("operation not allowed in current comment phase")
)

// FieldContainer is the step's underlying form surface. The review engine
// never renders anything itself; it drives enablement and flag markers
// through this boundary and reads values back for the resubmission diff.
// Value mutation stays with the host: the engine flags fields, it never
// writes them.
type FieldContainer interface {
	Value(ref FieldRef) (string, bool)
	OriginalValue(ref FieldRef) (string, bool)
	SetEnabled(ref FieldRef, enabled bool)
	SetFlagMarkersEnabled(enabled bool)
	ResetFlagMarkers()
}

// Notifier is the toast sink for user-visible outcomes.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// StepWorkflow binds one wizard step's field container to the comment phase
// machine and the flagged-field selection, and exposes the operations the
// hosting step UI calls.
type StepWorkflow struct {
	pageTitle string
	container FieldContainer
	notify    Notifier

	phase     Phase
	selection *Selection
	text      string

	committed       PageComment
	confirmDeleting bool
}

// NewStepWorkflow creates the workflow for one step. The container may be nil
// in contexts with no live form surface (server-side validation, tests).
func NewStepWorkflow(pageTitle string, container FieldContainer, notify Notifier) *StepWorkflow {
	return &StepWorkflow{
		pageTitle: pageTitle,
		container: container,
		notify:    notify,
		phase:     PhaseNone,
		selection: NewSelection(),
	}
}

// PageTitle returns the step title the comment is scoped to.
func (w *StepWorkflow) PageTitle() string { return w.pageTitle }

// Phase returns the current comment phase.
func (w *StepWorkflow) Phase() Phase { return w.phase }

// SelectionCount returns the number of currently flagged fields, used for
// stepper badges.
func (w *StepWorkflow) SelectionCount() int { return w.selection.Count() }

// ConfirmingDelete reports whether the delete-confirmation dialog is open.
func (w *StepWorkflow) ConfirmingDelete() bool { return w.confirmDeleting }

// AddComment begins a brand-new comment composition. It requires phase none;
// a second call without an intervening save or delete is a no-op. Entering
// the adding phase clears any stale selection and enables the flag markers
// on the step's inputs.
func (w *StepWorkflow) AddComment() error {
	if w.phase != PhaseNone {
		return ErrPhase
	}
	w.selection.clear()
	w.text = ""
	w.phase = PhaseAdding
	if w.container != nil {
		w.container.SetFlagMarkersEnabled(true)
	}
	return nil
}

// SetText updates the in-progress comment text. Ignored outside the
// composing phases.
func (w *StepWorkflow) SetText(text string) {
	if w.phase.Composing() {
		w.text = text
	}
}

// Text returns the in-progress comment text.
func (w *StepWorkflow) Text() string { return w.text }

// ToggleField flags or unflags one field for the in-progress comment.
func (w *StepWorkflow) ToggleField(selected bool, field FieldRef) {
	w.selection.Toggle(selected, field)
}

// HighlightInput reports whether the given input should render highlighted.
// Highlighting is suppressed while passively viewing an already-rendered
// comment so the saved comment's own markers are not doubled.
func (w *StepWorkflow) HighlightInput(inputKey, rowID string) bool {
	if w.phase == PhaseViewing {
		return false
	}
	return w.selection.Contains(inputKey, rowID)
}

// SaveComment commits a new comment: at least one flagged field, non-empty
// trimmed text, and the length cap are all required. On violation the phase
// is unchanged and the specific reason is notified exactly once.
func (w *StepWorkflow) SaveComment() error {
	if w.phase != PhaseAdding {
		return ErrPhase
	}
	if w.selection.Count() == 0 {
		return w.refuse(ErrNoFieldsSelected)
	}
	if err := w.validateText(); err != nil {
		return w.refuse(err)
	}
	w.commit()
	return nil
}

// EditComment reopens the text of a saved comment. The flagged field set is
// not reopened: fields are fixed once saved.
func (w *StepWorkflow) EditComment() error {
	if w.phase != PhaseViewing {
		return ErrPhase
	}
	w.phase = PhaseEditing
	w.text = w.committed.Text
	return nil
}

// SaveEditedComment commits revised text for an already-saved comment. The
// field selection precondition is not re-checked here; the set was fixed at
// the original save.
func (w *StepWorkflow) SaveEditedComment() error {
	if w.phase != PhaseEditing {
		return ErrPhase
	}
	if err := w.validateText(); err != nil {
		return w.refuse(err)
	}
	w.commit()
	return nil
}

// DeleteComments opens the delete-confirmation dialog. This is the only
// transition gated behind a confirmation step; the phase is unchanged until
// the reviewer confirms.
func (w *StepWorkflow) DeleteComments() {
	w.confirmDeleting = true
}

// ConfirmDeleteComment resets the step to phase none: selection cleared,
// text reset, flagged inputs re-enabled, flag markers reset on the
// underlying container.
func (w *StepWorkflow) ConfirmDeleteComment() {
	w.confirmDeleting = false
	w.reset()
	if w.notify != nil {
		w.notify.Success("Comment deleted.")
	}
}

// CancelDeleteComment dismisses the confirmation dialog without any state
// change.
func (w *StepWorkflow) CancelDeleteComment() {
	w.confirmDeleting = false
}

// Reset forces the step back to phase none without confirmation or
// notification. The parent wizard calls this when the plan is submitted,
// the wizard is discarded, or the mode changes back to create.
func (w *StepWorkflow) Reset() {
	w.confirmDeleting = false
	w.reset()
}

// PageComment materializes the current step snapshot, even mid-composition,
// so a parent orchestrator can read in-progress state without forcing a
// save.
func (w *StepWorkflow) PageComment() PageComment {
	if w.phase.Composing() {
		return PageComment{
			PageTitle: w.pageTitle,
			Text:      strings.TrimSpace(w.text),
			Fields:    w.selection.Fields(),
		}
	}
	return w.committed
}

// Committed returns the saved comment for this step, zero when none exists.
func (w *StepWorkflow) Committed() PageComment { return w.committed }

func (w *StepWorkflow) validateText() error {
	trimmed := strings.TrimSpace(w.text)
	if trimmed == "" {
		return ErrEmptyComment
	}
	if len([]rune(trimmed)) > MaxCommentLen {
		return ErrCommentTooLong
	}
	return nil
}

func (w *StepWorkflow) refuse(err error) error {
	if w.notify != nil {
		w.notify.Error(err.Error())
	}
	return err
}

func (w *StepWorkflow) commit() {
	fields := w.committed.Fields
	if w.phase == PhaseAdding {
		fields = w.selection.Fields()
	}
	w.committed = PageComment{
		PageTitle: w.pageTitle,
		Text:      strings.TrimSpace(w.text),
		Fields:    fields,
	}
	w.phase = PhaseViewing
	if w.container != nil {
		// Viewing locks the flagged inputs until the comment is deleted.
		for _, field := range w.committed.Fields {
			w.container.SetEnabled(field, false)
		}
	}
	if w.notify != nil {
		w.notify.Success("Comment saved.")
	}
}

func (w *StepWorkflow) reset() {
	if w.container != nil {
		for _, field := range w.committed.Fields {
			w.container.SetEnabled(field, true)
		}
		w.container.ResetFlagMarkers()
		w.container.SetFlagMarkersEnabled(false)
	}
	w.phase = PhaseNone
	w.text = ""
	w.selection.clear()
	w.committed = PageComment{}
}
