package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Service interface {
	// Record appends one entry. Call it with the session context of the
	// command's transaction so the entry commits atomically with the
	// mutation it describes.
	Record(ctx context.Context, requestID primitive.ObjectID, actorID, actorName, action string, details map[string]interface{}, ip string) error
	ListEntries(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]Entry, error)
}

type ServiceImpl struct {
	Repo Repository
}

func NewService(repo Repository) Service {
	return &ServiceImpl{Repo: repo}
}

func (s *ServiceImpl) Record(ctx context.Context, requestID primitive.ObjectID, actorID, actorName, action string, details map[string]interface{}, ip string) error {
	entry := &Entry{
		RequestID: requestID,
		ActorID:   actorID,
		ActorName: actorName,
		Action:    action,
		Details:   details,
		IPAddress: ip,
		Timestamp: time.Now(),
	}
	return s.Repo.Append(ctx, entry)
}

func (s *ServiceImpl) ListEntries(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]Entry, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit
	return s.Repo.List(ctx, filters, limit, offset)
}
