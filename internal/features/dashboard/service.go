package dashboard

import (
	"context"
	"time"
)

const (
	listLimit     = 25
	activityLimit = 20
)

type Service interface {
	GetDashboard(ctx context.Context, userID string) (*Dashboard, error)
	GetSummary(ctx context.Context) (*Summary, error)
}

type ServiceImpl struct {
	Repo Repository
}

func NewService(repo Repository) Service {
	return &ServiceImpl{Repo: repo}
}

func (s *ServiceImpl) GetSummary(ctx context.Context) (*Summary, error) {
	counts, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.Repo.CountOverdue(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	avgDays, err := s.Repo.AvgCompletionDays(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{
		CountsByStatus:    counts,
		OverdueCount:      overdue,
		AvgCompletionDays: avgDays,
	}, nil
}

func (s *ServiceImpl) GetDashboard(ctx context.Context, userID string) (*Dashboard, error) {
	summary, err := s.GetSummary(ctx)
	if err != nil {
		return nil, err
	}
	mine, err := s.Repo.AwaitingDecision(ctx, userID, listLimit)
	if err != nil {
		return nil, err
	}
	team, err := s.Repo.CreatedBy(ctx, userID, listLimit)
	if err != nil {
		return nil, err
	}
	activity, err := s.Repo.RecentEvents(ctx, activityLimit)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Summary:        *summary,
		MyApprovals:    mine,
		TeamApprovals:  team,
		RecentActivity: activity,
	}, nil
}
