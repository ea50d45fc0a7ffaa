package review

import (
	"fmt"
	"strings"
)

// Wizard is the surface a concrete plan wizard exposes to the orchestrator.
// Product and service localization plans plug in here; the orchestration
// algorithm itself is shared.
type Wizard interface {
	CollectPageComments() []PageComment
	ValidateCommentSubmission() error
	CanApproveOrReject() bool
	CloseWizard()
	Refresh()
}

// PlanWizard is the standard Wizard over an ordered list of step workflows.
type PlanWizard struct {
	steps   []*StepWorkflow
	close   func()
	refresh func()
}

// NewPlanWizard builds a wizard over the given steps. close and refresh are
// invoked by the orchestrator's terminal cleanup sequence and may be nil.
func NewPlanWizard(steps []*StepWorkflow, close, refresh func()) *PlanWizard {
	return &PlanWizard{steps: steps, close: close, refresh: refresh}
}

// Steps returns the wizard's step workflows in order.
func (p *PlanWizard) Steps() []*StepWorkflow { return p.steps }

// Step returns the workflow whose page title matches, or nil.
func (p *PlanWizard) Step(pageTitle string) *StepWorkflow {
	for _, step := range p.steps {
		if step.PageTitle() == pageTitle {
			return step
		}
	}
	return nil
}

// CollectPageComments gathers the committed comment of every step that has
// one. In-progress compositions are deliberately excluded; they are caught
// by ValidateCommentSubmission before anything is shipped.
func (p *PlanWizard) CollectPageComments() []PageComment {
	comments := make([]PageComment, 0, len(p.steps))
	for _, step := range p.steps {
		if committed := step.Committed(); !committed.IsZero() {
			comments = append(comments, committed)
		}
	}
	return comments
}

// ValidateCommentSubmission refuses send-back while any step has flagged
// fields but its comment was never saved. The error names every offending
// step so the reviewer knows where to finish.
func (p *PlanWizard) ValidateCommentSubmission() error {
	var unsaved []string
	for _, step := range p.steps {
		if step.Phase().Composing() && step.SelectionCount() > 0 {
			unsaved = append(unsaved, step.PageTitle())
		}
	}
	if len(unsaved) > 0 {
		return fmt.Errorf("save or discard the comment on %s before sending back", strings.Join(unsaved, ", "))
	}
	return nil
}

// CanApproveOrReject is true when no step has an active comment composition
// and no step carries flagged fields at all: an approval must not ship with
// outstanding flags.
func (p *PlanWizard) CanApproveOrReject() bool {
	for _, step := range p.steps {
		if step.Phase().Composing() {
			return false
		}
		if step.SelectionCount() > 0 || !step.Committed().IsZero() {
			return false
		}
	}
	return true
}

// CloseWizard forwards to the host close callback.
func (p *PlanWizard) CloseWizard() {
	if p.close != nil {
		p.close()
	}
}

// Refresh forwards to the host refresh callback.
func (p *PlanWizard) Refresh() {
	if p.refresh != nil {
		p.refresh()
	}
}

// ResetAll forces every step back to phase none, used when the parent wizard
// resets (plan submitted, dialog discarded, mode changed to create).
func (p *PlanWizard) ResetAll() {
	for _, step := range p.steps {
		step.Reset()
	}
}
