package rbac

type Role string
type Action string

const (
	RoleInvestor Role = "investor"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead   Action = "read"   // view plans and comments
	ActionDraft  Action = "draft"  // create and edit plan drafts, resubmit
	ActionReview Action = "review" // attach comments, send back
	ActionDecide Action = "decide" // approve or reject
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleApprover:
		return action == ActionRead || action == ActionReview || action == ActionDecide
	case RoleReviewer:
		return action == ActionRead || action == ActionReview
	case RoleInvestor:
		return action == ActionRead || action == ActionDraft
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleInvestor, RoleReviewer, RoleApprover, RoleAdmin:
		return Role(role)
	default:
		return RoleInvestor
	}
}
