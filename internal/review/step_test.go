package review

import (
	"errors"
	"strings"
	"testing"
)

type fakeNotifier struct {
	successes []string
	errors    []string
}

func (n *fakeNotifier) Success(message string) { n.successes = append(n.successes, message) }
func (n *fakeNotifier) Error(message string)   { n.errors = append(n.errors, message) }

type fakeContainer struct {
	values         map[FieldKey]string
	originals      map[FieldKey]string
	markersEnabled bool
	markersResets  int
	enabledCalls   map[FieldKey]bool
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		values:       map[FieldKey]string{},
		originals:    map[FieldKey]string{},
		enabledCalls: map[FieldKey]bool{},
	}
}

func (c *fakeContainer) Value(ref FieldRef) (string, bool) {
	v, ok := c.values[ref.Key()]
	return v, ok
}

func (c *fakeContainer) OriginalValue(ref FieldRef) (string, bool) {
	v, ok := c.originals[ref.Key()]
	return v, ok
}

func (c *fakeContainer) SetEnabled(ref FieldRef, enabled bool) { c.enabledCalls[ref.Key()] = enabled }
func (c *fakeContainer) SetFlagMarkersEnabled(enabled bool)    { c.markersEnabled = enabled }
func (c *fakeContainer) ResetFlagMarkers()                     { c.markersResets++ }

func coverField() FieldRef {
	return FieldRef{Section: "coverPage", InputKey: "companyName", Label: "Company name", Value: "Acme"}
}

func TestSaveWithNoSelection(t *testing.T) {
	notify := &fakeNotifier{}
	step := NewStepWorkflow("Cover Page", newFakeContainer(), notify)
	if err := step.AddComment(); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	step.SetText("ok")

	err := step.SaveComment()
	if !errors.Is(err, ErrNoFieldsSelected) {
		t.Fatalf("expected ErrNoFieldsSelected, got %v", err)
	}
	if step.Phase() != PhaseAdding {
		t.Fatalf("phase must stay adding, got %s", step.Phase())
	}
	if len(notify.errors) != 1 {
		t.Fatalf("error must be notified exactly once, got %d", len(notify.errors))
	}
	if notify.errors[0] != "Please select at least one field before adding a comment." {
		t.Fatalf("unexpected message %q", notify.errors[0])
	}
}

func TestSaveWithEmptyText(t *testing.T) {
	notify := &fakeNotifier{}
	step := NewStepWorkflow("Cover Page", newFakeContainer(), notify)
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText("   ")

	err := step.SaveComment()
	if !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("expected ErrEmptyComment, got %v", err)
	}
	if step.Phase() != PhaseAdding {
		t.Fatalf("phase must stay adding, got %s", step.Phase())
	}
	if len(notify.errors) != 1 {
		t.Fatalf("error must be notified exactly once, got %d", len(notify.errors))
	}
}

func TestSaveWithOverlongText(t *testing.T) {
	notify := &fakeNotifier{}
	step := NewStepWorkflow("Cover Page", newFakeContainer(), notify)
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText(strings.Repeat("a", 256))

	err := step.SaveComment()
	if !errors.Is(err, ErrCommentTooLong) {
		t.Fatalf("expected ErrCommentTooLong, got %v", err)
	}
	if step.Phase() != PhaseAdding {
		t.Fatalf("phase must stay adding, got %s", step.Phase())
	}

	step.SetText(strings.Repeat("a", 255))
	if err := step.SaveComment(); err != nil {
		t.Fatalf("255 characters must be accepted: %v", err)
	}
	if step.Phase() != PhaseViewing {
		t.Fatalf("phase should be viewing after save, got %s", step.Phase())
	}
}

func TestAddCommentIsIdempotentUnderPhasePrecondition(t *testing.T) {
	step := NewStepWorkflow("Overview", newFakeContainer(), &fakeNotifier{})
	if err := step.AddComment(); err != nil {
		t.Fatalf("first AddComment: %v", err)
	}
	step.ToggleField(true, coverField())
	step.SetText("draft")

	if err := step.AddComment(); !errors.Is(err, ErrPhase) {
		t.Fatalf("second AddComment must be refused, got %v", err)
	}
	if step.SelectionCount() != 1 || step.Text() != "draft" {
		t.Fatal("refused AddComment must not clear the active composition")
	}
}

func TestAddCommentClearsStaleSelectionAndEnablesMarkers(t *testing.T) {
	container := newFakeContainer()
	step := NewStepWorkflow("Overview", container, &fakeNotifier{})
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.Reset()

	_ = step.AddComment()
	if step.SelectionCount() != 0 {
		t.Fatal("entering adding must clear stale selection")
	}
	if !container.markersEnabled {
		t.Fatal("entering adding must enable flag markers")
	}
}

func TestDeleteFlow(t *testing.T) {
	notify := &fakeNotifier{}
	container := newFakeContainer()
	step := NewStepWorkflow("Cover Page", container, notify)
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText("needs work")
	if err := step.SaveComment(); err != nil {
		t.Fatalf("save: %v", err)
	}

	step.DeleteComments()
	if !step.ConfirmingDelete() {
		t.Fatal("confirmation dialog should be open")
	}
	if step.Phase() != PhaseViewing {
		t.Fatalf("phase must be unchanged while confirming, got %s", step.Phase())
	}

	step.CancelDeleteComment()
	if step.ConfirmingDelete() || step.Phase() != PhaseViewing {
		t.Fatal("cancel must dismiss the dialog without state change")
	}

	step.DeleteComments()
	step.ConfirmDeleteComment()
	if step.Phase() != PhaseNone {
		t.Fatalf("phase should be none after delete, got %s", step.Phase())
	}
	if step.SelectionCount() != 0 || step.Text() != "" {
		t.Fatal("selection and text must be reset")
	}
	if container.markersResets == 0 {
		t.Fatal("flag markers on the container must be reset")
	}
	last := notify.successes[len(notify.successes)-1]
	if last != "Comment deleted." {
		t.Fatalf("unexpected success message %q", last)
	}
}

// Saving disables the flagged inputs on the container for the whole viewing
// and editing life of the comment; deleting the comment re-enables them.
func TestSaveDisablesFlaggedInputsUntilDeleted(t *testing.T) {
	container := newFakeContainer()
	step := NewStepWorkflow("Cover Page", container, &fakeNotifier{})
	field := coverField()

	_ = step.AddComment()
	step.ToggleField(true, field)
	step.SetText("Company name must match the commercial license.")
	if err := step.SaveComment(); err != nil {
		t.Fatalf("save: %v", err)
	}
	enabled, called := container.enabledCalls[field.Key()]
	if !called || enabled {
		t.Fatalf("flagged input must be disabled after save, got enabled=%v called=%v", enabled, called)
	}

	if err := step.EditComment(); err != nil {
		t.Fatalf("edit: %v", err)
	}
	step.SetText("Revised wording.")
	if err := step.SaveEditedComment(); err != nil {
		t.Fatalf("save edited: %v", err)
	}
	if container.enabledCalls[field.Key()] {
		t.Fatal("flagged input must stay disabled after an edit save")
	}

	step.DeleteComments()
	step.ConfirmDeleteComment()
	if !container.enabledCalls[field.Key()] {
		t.Fatal("deleting the comment must re-enable the flagged input")
	}
}

// Editing a saved comment reopens the text only; the flagged field set stays
// fixed at save time. This is deliberate current behavior, pinned here.
func TestEditDoesNotReopenFieldSet(t *testing.T) {
	step := NewStepWorkflow("Cover Page", newFakeContainer(), &fakeNotifier{})
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText("first")
	if err := step.SaveComment(); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := step.EditComment(); err != nil {
		t.Fatalf("edit: %v", err)
	}
	extra := FieldRef{Section: "coverPage", InputKey: "crNumber"}
	step.ToggleField(true, extra)
	step.SetText("second")
	if err := step.SaveEditedComment(); err != nil {
		t.Fatalf("save edited: %v", err)
	}

	committed := step.Committed()
	if committed.Text != "second" {
		t.Fatalf("text should be replaced, got %q", committed.Text)
	}
	if len(committed.Fields) != 1 || committed.Fields[0].InputKey != "companyName" {
		t.Fatalf("field set must stay fixed at save time, got %+v", committed.Fields)
	}
}

func TestSaveEditedAllowsEmptySelectionRecheckSkip(t *testing.T) {
	step := NewStepWorkflow("Cover Page", newFakeContainer(), &fakeNotifier{})
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText("first")
	_ = step.SaveComment()
	_ = step.EditComment()
	step.ToggleField(false, coverField())
	step.SetText("revised")

	if err := step.SaveEditedComment(); err != nil {
		t.Fatalf("selection is not re-checked when editing: %v", err)
	}
}

func TestHighlightSuppressedWhileViewing(t *testing.T) {
	step := NewStepWorkflow("Cover Page", newFakeContainer(), &fakeNotifier{})
	_ = step.AddComment()
	field := coverField()
	step.ToggleField(true, field)
	if !step.HighlightInput(field.InputKey, "") {
		t.Fatal("flagged field should highlight while adding")
	}

	step.SetText("flagged")
	if err := step.SaveComment(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if step.HighlightInput(field.InputKey, "") {
		t.Fatal("highlight must be suppressed while viewing")
	}
}

func TestPageCommentSnapshotMidComposition(t *testing.T) {
	step := NewStepWorkflow("Overview", newFakeContainer(), &fakeNotifier{})
	_ = step.AddComment()
	step.ToggleField(true, coverField())
	step.SetText("  in progress  ")

	snapshot := step.PageComment()
	if snapshot.PageTitle != "Overview" || snapshot.Text != "in progress" || len(snapshot.Fields) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if step.Phase() != PhaseAdding {
		t.Fatal("reading the snapshot must not force a save")
	}
}
