package review

import (
	"context"
	"errors"
	"testing"
)

type fakeActions struct {
	sendBackFn func(ctx context.Context, planID string, comments []PageComment) error
	approveFn  func(ctx context.Context, planID, note string) error
	rejectFn   func(ctx context.Context, planID, reason string) error

	log []string
}

func (a *fakeActions) SendBack(ctx context.Context, planID string, comments []PageComment) error {
	a.log = append(a.log, "sendBack")
	if a.sendBackFn != nil {
		return a.sendBackFn(ctx, planID, comments)
	}
	return nil
}

func (a *fakeActions) Approve(ctx context.Context, planID, note string) error {
	a.log = append(a.log, "approve")
	if a.approveFn != nil {
		return a.approveFn(ctx, planID, note)
	}
	return nil
}

func (a *fakeActions) Reject(ctx context.Context, planID, reason string) error {
	a.log = append(a.log, "reject")
	if a.rejectFn != nil {
		return a.rejectFn(ctx, planID, reason)
	}
	return nil
}

func newReviewFixture(t *testing.T, planID string) (*Orchestrator, *PlanWizard, *fakeActions, *fakeNotifier, *[]string) {
	t.Helper()
	events := &[]string{}
	steps := []*StepWorkflow{
		NewStepWorkflow("Cover Page", newFakeContainer(), &fakeNotifier{}),
		NewStepWorkflow("Overview", newFakeContainer(), &fakeNotifier{}),
	}
	wizard := NewPlanWizard(steps,
		func() { *events = append(*events, "close") },
		func() { *events = append(*events, "refresh") },
	)
	actions := &fakeActions{}
	notify := &fakeNotifier{}
	session := &WizardSession{PlanID: planID, Mode: ModeReview}
	orch := NewOrchestrator(session, wizard, actions, notify)
	return orch, wizard, actions, notify, events
}

func flagAndSave(t *testing.T, step *StepWorkflow, text string) {
	t.Helper()
	if err := step.AddComment(); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	step.ToggleField(true, FieldRef{Section: "s", InputKey: "k" + step.PageTitle()})
	step.SetText(text)
	if err := step.SaveComment(); err != nil {
		t.Fatalf("SaveComment: %v", err)
	}
}

func TestSendBackRefusedWithUnsavedComposition(t *testing.T) {
	orch, wizard, _, notify, _ := newReviewFixture(t, "plan-1")
	step := wizard.Steps()[0]
	_ = step.AddComment()
	step.ToggleField(true, FieldRef{Section: "coverPage", InputKey: "companyName"})

	err := orch.SendBackToInvestor()
	if err == nil {
		t.Fatal("send-back must be refused while a composition is unsaved")
	}
	if orch.Dialogs().SendBackConfirm {
		t.Fatal("confirmation dialog must not open")
	}
	if len(notify.errors) != 1 {
		t.Fatalf("expected one error toast, got %d", len(notify.errors))
	}
	if got := notify.errors[0]; got != "save or discard the comment on Cover Page before sending back" {
		t.Fatalf("error must name the step, got %q", got)
	}
}

func TestConfirmSendBackCleanupSequence(t *testing.T) {
	orch, wizard, actions, notify, events := newReviewFixture(t, "plan-1")
	flagAndSave(t, wizard.Steps()[0], "fix the CR number")

	if err := orch.SendBackToInvestor(); err != nil {
		t.Fatalf("SendBackToInvestor: %v", err)
	}
	if !orch.Dialogs().SendBackConfirm {
		t.Fatal("confirmation dialog should be open")
	}
	if err := orch.ConfirmSendBack(context.Background()); err != nil {
		t.Fatalf("ConfirmSendBack: %v", err)
	}

	if orch.Processing() {
		t.Fatal("processing flag must be cleared")
	}
	if orch.Dialogs().SendBackConfirm {
		t.Fatal("dialog must be closed")
	}
	if len(notify.successes) != 1 {
		t.Fatalf("expected one success toast, got %d", len(notify.successes))
	}
	if len(actions.log) != 1 || actions.log[0] != "sendBack" {
		t.Fatalf("unexpected persistence calls %v", actions.log)
	}
	// refresh must run before close.
	if len(*events) != 2 || (*events)[0] != "refresh" || (*events)[1] != "close" {
		t.Fatalf("cleanup order wrong: %v", *events)
	}
}

func TestConfirmSendBackRequiresPlanID(t *testing.T) {
	orch, wizard, actions, notify, _ := newReviewFixture(t, "")
	flagAndSave(t, wizard.Steps()[0], "fix this")
	_ = orch.SendBackToInvestor()

	err := orch.ConfirmSendBack(context.Background())
	if !errors.Is(err, ErrNoPlanID) {
		t.Fatalf("expected ErrNoPlanID, got %v", err)
	}
	if len(actions.log) != 0 {
		t.Fatal("no persistence call may fire without a plan id")
	}
	if len(notify.errors) != 1 {
		t.Fatalf("expected one error toast, got %d", len(notify.errors))
	}
}

func TestConfirmSendBackErrorLeavesDialogOpen(t *testing.T) {
	orch, wizard, actions, notify, events := newReviewFixture(t, "plan-1")
	flagAndSave(t, wizard.Steps()[0], "fix this")
	actions.sendBackFn = func(context.Context, string, []PageComment) error {
		return errors.New("boom")
	}
	_ = orch.SendBackToInvestor()

	if err := orch.ConfirmSendBack(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if orch.Processing() {
		t.Fatal("processing flag must be cleared on error")
	}
	if !orch.Dialogs().SendBackConfirm {
		t.Fatal("dialog must stay open so the reviewer can retry")
	}
	if len(*events) != 0 {
		t.Fatalf("no refresh or close on error, got %v", *events)
	}
	if len(notify.errors) != 1 || notify.errors[0] != "Something went wrong. Please try again." {
		t.Fatalf("raw error detail must not surface, got %v", notify.errors)
	}
}

func TestApproveGatedByOutstandingFlags(t *testing.T) {
	orch, wizard, _, _, _ := newReviewFixture(t, "plan-1")
	flagAndSave(t, wizard.Steps()[0], "fix this")

	if err := orch.ApproveAndForward(); !errors.Is(err, ErrCannotDecide) {
		t.Fatalf("approval must be refused with outstanding flags, got %v", err)
	}
	if orch.Dialogs().ApproveConfirm {
		t.Fatal("approve dialog must not open")
	}
}

func TestApproveHappyPath(t *testing.T) {
	orch, _, actions, _, _ := newReviewFixture(t, "plan-1")
	var gotNote string
	actions.approveFn = func(_ context.Context, _ string, note string) error {
		gotNote = note
		return nil
	}

	if err := orch.ApproveAndForward(); err != nil {
		t.Fatalf("ApproveAndForward: %v", err)
	}
	orch.SetApproveNote("  looks good  ")
	if err := orch.ConfirmApprove(context.Background()); err != nil {
		t.Fatalf("ConfirmApprove: %v", err)
	}
	if gotNote != "looks good" {
		t.Fatalf("note should be trimmed, got %q", gotNote)
	}
}

func TestRejectTwoPhasePreservesReason(t *testing.T) {
	orch, _, actions, notify, _ := newReviewFixture(t, "plan-1")

	if err := orch.Reject(); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !orch.Dialogs().RejectReason {
		t.Fatal("reason-entry dialog should be open")
	}

	if err := orch.ProceedReject(); !errors.Is(err, ErrNoRejectReason) {
		t.Fatalf("empty reason must be refused, got %v", err)
	}

	orch.SetRejectReason("incomplete financial model")
	if err := orch.ProceedReject(); err != nil {
		t.Fatalf("ProceedReject: %v", err)
	}
	if orch.Dialogs().RejectReason || !orch.Dialogs().RejectConfirm {
		t.Fatal("confirmation dialog should replace the reason dialog")
	}

	orch.CancelRejectConfirmation()
	if !orch.Dialogs().RejectReason || orch.Dialogs().RejectConfirm {
		t.Fatal("cancel must return to the reason dialog")
	}
	if orch.RejectReason() != "incomplete financial model" {
		t.Fatal("reason must be preserved so the reviewer does not retype it")
	}

	if err := orch.ProceedReject(); err != nil {
		t.Fatalf("ProceedReject again: %v", err)
	}
	var gotReason string
	actions.rejectFn = func(_ context.Context, _ string, reason string) error {
		gotReason = reason
		return nil
	}
	if err := orch.ConfirmReject(context.Background()); err != nil {
		t.Fatalf("ConfirmReject: %v", err)
	}
	if gotReason != "incomplete financial model" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
	if len(notify.successes) != 1 {
		t.Fatalf("expected one success toast, got %d", len(notify.successes))
	}
}

func TestResetAllForcesEveryStepBackToNone(t *testing.T) {
	_, wizard, _, _, _ := newReviewFixture(t, "plan-1")
	flagAndSave(t, wizard.Steps()[0], "cover needs work")
	second := wizard.Steps()[1]
	_ = second.AddComment()
	second.ToggleField(true, FieldRef{Section: "overview", InputKey: "summary"})
	second.SetText("mid-composition")
	second.DeleteComments()

	wizard.ResetAll()

	for _, step := range wizard.Steps() {
		if step.Phase() != PhaseNone {
			t.Fatalf("step %s phase = %s after ResetAll", step.PageTitle(), step.Phase())
		}
		if step.SelectionCount() != 0 || step.Text() != "" || !step.Committed().IsZero() {
			t.Fatalf("step %s state not cleared after ResetAll", step.PageTitle())
		}
		if step.ConfirmingDelete() {
			t.Fatalf("step %s delete confirmation left open after ResetAll", step.PageTitle())
		}
	}
	if !wizard.CanApproveOrReject() {
		t.Fatal("a fully reset wizard must be decidable again")
	}
}
