package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func approver(userID string, required bool, decision Decision) Approver {
	a := Approver{
		UserID:     userID,
		IsRequired: required,
		Decision:   decision,
	}
	if decision != DecisionNone {
		now := time.Now()
		a.DecidedAt = &now
		a.Signature = ESignature{Signed: true, SignedAt: &now}
	}
	return a
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		approvers []Approver
		want      Status
	}{
		{
			name: "no decisions yet",
			approvers: []Approver{
				approver("u1", true, DecisionNone),
				approver("u2", true, DecisionNone),
			},
			want: StatusPending,
		},
		{
			name: "partial required approvals stay pending",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", true, DecisionNone),
			},
			want: StatusPending,
		},
		{
			name: "all required approved",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", true, DecisionApproved),
			},
			want: StatusApproved,
		},
		{
			name: "optional approver still undecided does not block approval",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", false, DecisionNone),
			},
			want: StatusApproved,
		},
		{
			name: "required rejection wins",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", true, DecisionRejected),
			},
			want: StatusRejected,
		},
		{
			name: "optional rejection cannot veto",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", false, DecisionRejected),
			},
			want: StatusApproved,
		},
		{
			name: "optional rejection with required still open stays pending",
			approvers: []Approver{
				approver("u1", true, DecisionNone),
				approver("u2", false, DecisionRejected),
			},
			want: StatusPending,
		},
		{
			name: "changes requested by a required approver",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", true, DecisionChangesRequested),
			},
			want: StatusChangesRequested,
		},
		{
			name: "changes requested by an optional approver",
			approvers: []Approver{
				approver("u1", true, DecisionApproved),
				approver("u2", false, DecisionChangesRequested),
			},
			want: StatusChangesRequested,
		},
		{
			name: "required rejection beats changes requested",
			approvers: []Approver{
				approver("u1", true, DecisionRejected),
				approver("u2", true, DecisionChangesRequested),
			},
			want: StatusRejected,
		},
		{
			name: "only optional approvers can never approve",
			approvers: []Approver{
				approver("u1", false, DecisionApproved),
				approver("u2", false, DecisionApproved),
			},
			want: StatusPending,
		},
		{
			name:      "empty registry",
			approvers: nil,
			want:      StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.approvers))
		})
	}
}

// The aggregate must be a pure function of the decision set: every arrival
// order of the same decisions yields the same status.
func TestAggregateOrderIndependent(t *testing.T) {
	sets := [][]Approver{
		{
			approver("u1", true, DecisionApproved),
			approver("u2", true, DecisionRejected),
			approver("u3", false, DecisionChangesRequested),
		},
		{
			approver("u1", true, DecisionApproved),
			approver("u2", true, DecisionApproved),
			approver("u3", false, DecisionNone),
		},
		{
			approver("u1", true, DecisionNone),
			approver("u2", false, DecisionRejected),
			approver("u3", false, DecisionApproved),
		},
	}

	for _, set := range sets {
		want := Aggregate(set)
		permute(set, func(p []Approver) {
			assert.Equal(t, want, Aggregate(p))
		})
	}
}

func TestAggregateIdempotent(t *testing.T) {
	set := []Approver{
		approver("u1", true, DecisionApproved),
		approver("u2", false, DecisionRejected),
	}
	first := Aggregate(set)
	assert.Equal(t, first, Aggregate(set))
	assert.Equal(t, first, Aggregate(set))
}

func permute(items []Approver, visit func([]Approver)) {
	var rec func(k int)
	rec = func(k int) {
		if k == len(items) {
			visit(items)
			return
		}
		for i := k; i < len(items); i++ {
			items[k], items[i] = items[i], items[k]
			rec(k + 1)
			items[k], items[i] = items[i], items[k]
		}
	}
	rec(0)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name string
		req  ApprovalRequest
		want bool
	}{
		{"no due date", ApprovalRequest{Status: StatusPending}, false},
		{"due in the future", ApprovalRequest{Status: StatusPending, DueDate: &future}, false},
		{"past due while pending", ApprovalRequest{Status: StatusPending, DueDate: &past}, true},
		{"past due while changes requested", ApprovalRequest{Status: StatusChangesRequested, DueDate: &past}, true},
		{"past due but approved", ApprovalRequest{Status: StatusApproved, DueDate: &past}, false},
		{"past due but rejected", ApprovalRequest{Status: StatusRejected, DueDate: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverdue(&tt.req, now))
		})
	}
}
