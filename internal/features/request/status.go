package request

import "time"

// Aggregate maps the current approver registry to the request's overall
// status. It is pure, commutative and idempotent: the result depends only on
// the set of decisions, not on the order they arrived in. Every command path
// must go through it; nothing else assigns a status.
//
// Rules, in order:
//  1. a required approver's rejection forces rejected (optional approvers
//     cannot veto),
//  2. any changes_requested decision forces changes_requested,
//  3. approved once every required approver approved, provided at least one
//     required approver exists,
//  4. pending otherwise.
func Aggregate(approvers []Approver) Status {
	var (
		hasRequired      bool
		allRequiredOK    = true
		changesRequested bool
	)

	for i := range approvers {
		a := &approvers[i]
		if a.IsRequired {
			hasRequired = true
			if a.Decision == DecisionRejected {
				return StatusRejected
			}
			if a.Decision != DecisionApproved {
				allRequiredOK = false
			}
		}
		if a.Decision == DecisionChangesRequested {
			changesRequested = true
		}
	}

	if changesRequested {
		return StatusChangesRequested
	}
	if hasRequired && allRequiredOK {
		return StatusApproved
	}
	return StatusPending
}

// IsOverdue is a derived read, never a stored flag: true while the due date
// has passed and the request can still move. It flips to false the instant a
// terminal status is reached, with no due-date change.
func IsOverdue(req *ApprovalRequest, now time.Time) bool {
	if req.DueDate == nil {
		return false
	}
	if req.Status != StatusPending && req.Status != StatusChangesRequested {
		return false
	}
	return now.After(*req.DueDate)
}
