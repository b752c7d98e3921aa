package dashboard

import (
	"go-approvals/internal/features/request"
)

// Summary holds the aggregate numbers shown at the top of the dashboard.
// Nothing here is stored: every read recomputes from the underlying
// collections, so the numbers can never go stale.
type Summary struct {
	CountsByStatus    map[request.Status]int64 `json:"counts_by_status"`
	OverdueCount      int64                    `json:"overdue_count"`
	AvgCompletionDays float64                  `json:"avg_completion_days"`
}

// Dashboard is the full projection returned to one user.
type Dashboard struct {
	Summary        Summary                   `json:"summary"`
	MyApprovals    []request.ApprovalRequest `json:"my_approvals"`
	TeamApprovals  []request.ApprovalRequest `json:"team_approvals"`
	RecentActivity []request.Event           `json:"recent_activity"`
}
