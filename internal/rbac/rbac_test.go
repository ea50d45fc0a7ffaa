package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleInvestor, ActionRead, true},
		{RoleInvestor, ActionDraft, true},
		{RoleInvestor, ActionReview, false},
		{RoleInvestor, ActionDecide, false},
		{RoleReviewer, ActionReview, true},
		{RoleReviewer, ActionDecide, false},
		{RoleReviewer, ActionDraft, false},
		{RoleApprover, ActionReview, true},
		{RoleApprover, ActionDecide, true},
		{RoleApprover, ActionDraft, false},
		{RoleAdmin, ActionDecide, true},
		{RoleAdmin, ActionAdmin, true},
		{Role("unknown"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("reviewer") != RoleReviewer {
		t.Fatal("known roles pass through")
	}
	if Normalize("") != RoleInvestor {
		t.Fatal("unknown roles default to investor")
	}
}
