package dashboard

import (
	"context"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/database"
	"go-approvals/internal/features/request"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	CountByStatus(ctx context.Context) (map[request.Status]int64, error)
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
	AvgCompletionDays(ctx context.Context) (float64, error)
	AwaitingDecision(ctx context.Context, userID string, limit int64) ([]request.ApprovalRequest, error)
	CreatedBy(ctx context.Context, userID string, limit int64) ([]request.ApprovalRequest, error)
	RecentEvents(ctx context.Context, limit int64) ([]request.Event, error)
}

type RepositoryImpl struct {
	requests  *mongo.Collection
	approvers *mongo.Collection
	events    *mongo.Collection
}

func NewRepository(mongodb *database.MongodbDB) Repository {
	return &RepositoryImpl{
		requests:  mongodb.DB.Collection("approval_requests"),
		approvers: mongodb.DB.Collection("approvers"),
		events:    mongodb.DB.Collection("events"),
	}
}

func (r *RepositoryImpl) CountByStatus(ctx context.Context) (map[request.Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.requests.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.Persistence("failed to aggregate status counts", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status request.Status `bson:"_id"`
		Count  int64          `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, apperrors.Persistence("failed to decode status counts", err)
	}

	counts := map[request.Status]int64{
		request.StatusPending:          0,
		request.StatusApproved:         0,
		request.StatusRejected:         0,
		request.StatusChangesRequested: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *RepositoryImpl) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	count, err := r.requests.CountDocuments(ctx, bson.M{
		"status":   bson.M{"$in": []request.Status{request.StatusPending, request.StatusChangesRequested}},
		"due_date": bson.M{"$lt": now},
	})
	if err != nil {
		return 0, apperrors.Persistence("failed to count overdue requests", err)
	}
	return count, nil
}

func (r *RepositoryImpl) AvgCompletionDays(ctx context.Context) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"completed_at": bson.M{"$ne": nil}}}},
		{{Key: "$project", Value: bson.M{
			"duration_ms": bson.M{"$subtract": bson.A{"$completed_at", "$created_at"}},
		}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "avg_ms": bson.M{"$avg": "$duration_ms"}}}},
	}
	cursor, err := r.requests.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, apperrors.Persistence("failed to aggregate completion time", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		AvgMs float64 `bson:"avg_ms"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return 0, apperrors.Persistence("failed to decode completion time", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].AvgMs / float64(24*time.Hour/time.Millisecond), nil
}

// AwaitingDecision returns pending requests where the user is an approver and
// has not signed a decision yet.
func (r *RepositoryImpl) AwaitingDecision(ctx context.Context, userID string, limit int64) ([]request.ApprovalRequest, error) {
	cursor, err := r.approvers.Find(ctx, bson.M{
		"user_id":          userID,
		"signature.signed": false,
	})
	if err != nil {
		return nil, apperrors.Persistence("failed to list approver rows", err)
	}
	var rows []request.Approver
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, apperrors.Persistence("failed to decode approver rows", err)
	}
	if len(rows) == 0 {
		return []request.ApprovalRequest{}, nil
	}

	ids := make([]primitive.ObjectID, len(rows))
	for i, row := range rows {
		ids[i] = row.RequestID
	}

	opts := options.Find().SetSort(bson.M{"created_at": 1}).SetLimit(limit)
	reqCursor, err := r.requests.Find(ctx, bson.M{
		"_id":    bson.M{"$in": ids},
		"status": request.StatusPending,
	}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list awaiting requests", err)
	}
	defer reqCursor.Close(ctx)

	var requests []request.ApprovalRequest
	if err = reqCursor.All(ctx, &requests); err != nil {
		return nil, apperrors.Persistence("failed to decode awaiting requests", err)
	}
	return requests, nil
}

func (r *RepositoryImpl) CreatedBy(ctx context.Context, userID string, limit int64) ([]request.ApprovalRequest, error) {
	opts := options.Find().SetSort(bson.M{"updated_at": -1}).SetLimit(limit)
	cursor, err := r.requests.Find(ctx, bson.M{"created_by.id": userID}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list created requests", err)
	}
	defer cursor.Close(ctx)

	var requests []request.ApprovalRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, apperrors.Persistence("failed to decode created requests", err)
	}
	return requests, nil
}

func (r *RepositoryImpl) RecentEvents(ctx context.Context, limit int64) ([]request.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(limit)
	cursor, err := r.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list recent events", err)
	}
	defer cursor.Close(ctx)

	var events []request.Event
	if err = cursor.All(ctx, &events); err != nil {
		return nil, apperrors.Persistence("failed to decode recent events", err)
	}
	return events, nil
}
