package notification

import (
	"context"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	GetByUserID(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAsRead(ctx context.Context, id primitive.ObjectID, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
}

type RepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRepository(mongodb *database.MongodbDB) Repository {
	return &RepositoryImpl{
		Collection: mongodb.DB.Collection("notifications"),
	}
}

func (r *RepositoryImpl) Create(ctx context.Context, notification *Notification) error {
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	notification.CreatedAt = time.Now()
	if _, err := r.Collection.InsertOne(ctx, notification); err != nil {
		return apperrors.Persistence("failed to insert notification", err)
	}
	return nil
}

func (r *RepositoryImpl) GetByUserID(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Persistence("failed to count notifications", err)
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, apperrors.Persistence("failed to list notifications", err)
	}
	defer cursor.Close(ctx)

	var notifications []Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, 0, apperrors.Persistence("failed to decode notifications", err)
	}
	return notifications, total, nil
}

func (r *RepositoryImpl) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := r.Collection.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, apperrors.Persistence("failed to count unread notifications", err)
	}
	return count, nil
}

func (r *RepositoryImpl) MarkAsRead(ctx context.Context, id primitive.ObjectID, userID string) error {
	result, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return apperrors.Persistence("failed to mark notification read", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("notification %q does not exist", id.Hex())
	}
	return nil
}

func (r *RepositoryImpl) MarkAllAsRead(ctx context.Context, userID string) error {
	_, err := r.Collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return apperrors.Persistence("failed to mark notifications read", err)
	}
	return nil
}
