package review

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Validation failures raised before any persistence call is attempted.
var (
	ErrNoPlanID       = errors.New("No plan selected. Reopen the plan and try again.")
	ErrNoRejectReason = errors.New("Please provide a rejection reason.")
	ErrRejectTooLong  = errors.New("Rejection reason must not exceed 255 characters.")
	ErrCannotDecide   = errors.New("Resolve all flagged fields before approving or rejecting.")
	ErrAlreadyBusy    = errors.New("A request is already in progress.")
	ErrDialogNotOpen  = errors.New("no confirmation pending")
)

// PlanActions is the persistence boundary for reviewer decisions. Each call
// returns nil on success or an error the orchestrator surfaces as a generic
// failure toast (detail logged, never shown raw).
type PlanActions interface {
	SendBack(ctx context.Context, planID string, comments []PageComment) error
	Approve(ctx context.Context, planID, note string) error
	Reject(ctx context.Context, planID, reason string) error
}

// Dialogs holds the visibility flags of the four orchestrator dialogs. The
// host UI renders whichever flag is set; at most one is set at a time.
type Dialogs struct {
	SendBackConfirm bool
	ApproveConfirm  bool
	RejectReason    bool
	RejectConfirm   bool
}

// WizardSession is the per-open-wizard state shared between the orchestrator
// and its host. It replaces any global wizard store: one session exists per
// open wizard instance and is torn down explicitly on close.
type WizardSession struct {
	PlanID string
	Mode   Mode
}

// Reset clears the session for the next wizard open.
func (s *WizardSession) Reset() {
	s.PlanID = ""
	s.Mode = ModeView
}

// Orchestrator drives the approve / reject / send-back flow shared by every
// plan wizard variant. Concrete wizards plug in via the Wizard interface;
// persistence via PlanActions.
type Orchestrator struct {
	session *WizardSession
	wizard  Wizard
	actions PlanActions
	notify  Notifier

	dialogs      Dialogs
	processing   bool
	rejectReason string
	approveNote  string
}

// NewOrchestrator wires an orchestrator to one open wizard session.
func NewOrchestrator(session *WizardSession, wizard Wizard, actions PlanActions, notify Notifier) *Orchestrator {
	return &Orchestrator{session: session, wizard: wizard, actions: actions, notify: notify}
}

// Dialogs returns the current dialog visibility flags.
func (o *Orchestrator) Dialogs() Dialogs { return o.dialogs }

// Processing reports whether a persistence call is outstanding. The host UI
// disables submit affordances while this is true.
func (o *Orchestrator) Processing() bool { return o.processing }

// RejectReason returns the reason typed so far, preserved across the
// reason-entry and confirmation dialogs.
func (o *Orchestrator) RejectReason() string { return o.rejectReason }

// SendBackToInvestor validates that no step still has an unsaved comment
// composition with flagged fields, then opens the send-back confirmation
// dialog. Nothing is persisted yet.
func (o *Orchestrator) SendBackToInvestor() error {
	if err := o.wizard.ValidateCommentSubmission(); err != nil {
		o.refuse(err)
		return err
	}
	o.dialogs.SendBackConfirm = true
	return nil
}

// ConfirmSendBack collects the committed page comments and persists the
// send-back decision.
func (o *Orchestrator) ConfirmSendBack(ctx context.Context) error {
	if !o.dialogs.SendBackConfirm {
		return ErrDialogNotOpen
	}
	if err := o.requirePlanID(); err != nil {
		return err
	}
	comments := o.wizard.CollectPageComments()
	return o.perform(ctx, &o.dialogs.SendBackConfirm, "Plan sent back to the investor.", func(ctx context.Context) error {
		return o.actions.SendBack(ctx, o.session.PlanID, comments)
	})
}

// CancelSendBack dismisses the send-back confirmation dialog.
func (o *Orchestrator) CancelSendBack() {
	o.dialogs.SendBackConfirm = false
}

// ApproveAndForward opens the approve confirmation dialog, gated by the
// wizard's approval precondition.
func (o *Orchestrator) ApproveAndForward() error {
	if !o.wizard.CanApproveOrReject() {
		o.refuse(ErrCannotDecide)
		return ErrCannotDecide
	}
	o.dialogs.ApproveConfirm = true
	return nil
}

// SetApproveNote records the optional note shown in the approve dialog.
func (o *Orchestrator) SetApproveNote(note string) {
	o.approveNote = note
}

// ConfirmApprove persists the approval with the optional trimmed note.
func (o *Orchestrator) ConfirmApprove(ctx context.Context) error {
	if !o.dialogs.ApproveConfirm {
		return ErrDialogNotOpen
	}
	if err := o.requirePlanID(); err != nil {
		return err
	}
	note := strings.TrimSpace(o.approveNote)
	return o.perform(ctx, &o.dialogs.ApproveConfirm, "Plan approved.", func(ctx context.Context) error {
		return o.actions.Approve(ctx, o.session.PlanID, note)
	})
}

// CancelApprove dismisses the approve confirmation dialog.
func (o *Orchestrator) CancelApprove() {
	o.dialogs.ApproveConfirm = false
}

// Reject opens the reason-entry dialog, gated like approval.
func (o *Orchestrator) Reject() error {
	if !o.wizard.CanApproveOrReject() {
		o.refuse(ErrCannotDecide)
		return ErrCannotDecide
	}
	o.dialogs.RejectReason = true
	return nil
}

// SetRejectReason records the reason typed in the reason-entry dialog.
func (o *Orchestrator) SetRejectReason(reason string) {
	o.rejectReason = reason
}

// ProceedReject validates the rejection reason, then swaps the reason-entry
// dialog for the destructive confirmation dialog. The reason itself is kept.
func (o *Orchestrator) ProceedReject() error {
	if !o.dialogs.RejectReason {
		return ErrDialogNotOpen
	}
	reason := strings.TrimSpace(o.rejectReason)
	if reason == "" {
		o.refuse(ErrNoRejectReason)
		return ErrNoRejectReason
	}
	if len([]rune(reason)) > MaxCommentLen {
		o.refuse(ErrRejectTooLong)
		return ErrRejectTooLong
	}
	o.dialogs.RejectReason = false
	o.dialogs.RejectConfirm = true
	return nil
}

// CancelRejectConfirmation returns to the reason-entry dialog rather than
// discarding the reason, so the reviewer does not retype it.
func (o *Orchestrator) CancelRejectConfirmation() {
	o.dialogs.RejectConfirm = false
	o.dialogs.RejectReason = true
}

// CancelReject abandons the rejection entirely and discards the reason.
func (o *Orchestrator) CancelReject() {
	o.dialogs.RejectReason = false
	o.dialogs.RejectConfirm = false
	o.rejectReason = ""
}

// ConfirmReject persists the rejection with the validated reason.
func (o *Orchestrator) ConfirmReject(ctx context.Context) error {
	if !o.dialogs.RejectConfirm {
		return ErrDialogNotOpen
	}
	if err := o.requirePlanID(); err != nil {
		return err
	}
	reason := strings.TrimSpace(o.rejectReason)
	return o.perform(ctx, &o.dialogs.RejectConfirm, "Plan rejected.", func(ctx context.Context) error {
		return o.actions.Reject(ctx, o.session.PlanID, reason)
	})
}

func (o *Orchestrator) requirePlanID() error {
	if strings.TrimSpace(o.session.PlanID) == "" {
		o.refuse(ErrNoPlanID)
		return ErrNoPlanID
	}
	return nil
}

// perform runs one persistence call with the shared processing flag and, on
// success, the terminal cleanup sequence. The sequence order is load-bearing:
// clear processing, close the dialog, notify, refresh, close the wizard,
// reset the session. On error the dialog stays open and no workflow state
// advances, so the reviewer can retry.
func (o *Orchestrator) perform(ctx context.Context, dialog *bool, successMsg string, call func(context.Context) error) error {
	if o.processing {
		return ErrAlreadyBusy
	}
	o.processing = true
	if err := call(ctx); err != nil {
		o.processing = false
		log.Printf("review: plan action failed: %v", err)
		if o.notify != nil {
			o.notify.Error("Something went wrong. Please try again.")
		}
		return err
	}
	o.processing = false
	*dialog = false
	if o.notify != nil {
		o.notify.Success(successMsg)
	}
	o.wizard.Refresh()
	o.wizard.CloseWizard()
	o.session.Reset()
	return nil
}

func (o *Orchestrator) refuse(err error) {
	if o.notify != nil {
		o.notify.Error(err.Error())
	}
}
