package automation

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
	Create(ctx context.Context, rule *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	ListActiveByTrigger(ctx context.Context, trigger request.EventAction) ([]Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

type RepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRepository(mongodb *database.MongodbDB) Repository {
	return &RepositoryImpl{
		Collection: mongodb.DB.Collection("automation_rules"),
	}
}

func (r *RepositoryImpl) Create(ctx context.Context, rule *Rule) error {
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	res, err := r.Collection.InsertOne(ctx, rule)
	if err != nil {
		return apperrors.Persistence("failed to create automation rule", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		rule.ID = oid
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, id string) (*Rule, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.Validation("invalid rule id")
	}

	var rule Rule
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&rule)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFound("automation rule not found")
	}
	if err != nil {
		return nil, apperrors.Persistence("failed to get automation rule", err)
	}
	return &rule, nil
}

func (r *RepositoryImpl) List(ctx context.Context) ([]Rule, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := r.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list automation rules", err)
	}
	defer cursor.Close(ctx)

	var rules []Rule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, apperrors.Persistence("failed to decode automation rules", err)
	}
	return rules, nil
}

func (r *RepositoryImpl) ListActiveByTrigger(ctx context.Context, trigger request.EventAction) ([]Rule, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"trigger": trigger, "active": true})
	if err != nil {
		return nil, apperrors.Persistence("failed to list automation rules", err)
	}
	defer cursor.Close(ctx)

	var rules []Rule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, apperrors.Persistence("failed to decode automation rules", err)
	}
	return rules, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": rule.ID},
		bson.M{"$set": bson.M{
			"name":            rule.Name,
			"trigger":         rule.Trigger,
			"condition":       rule.Condition,
			"notify_user_ids": rule.NotifyUserIDs,
			"message":         rule.Message,
			"active":          rule.Active,
			"updated_at":      rule.UpdatedAt,
		}},
	)
	if err != nil {
		return apperrors.Persistence("failed to update automation rule", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("automation rule not found")
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.Validation("invalid rule id")
	}

	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return apperrors.Persistence("failed to delete automation rule", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("automation rule not found")
	}
	return nil
}
