package audit

import (
	"context"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filters map[string]interface{}, limit, offset int64) ([]Entry, error)
	ListUnarchived(ctx context.Context, limit int64) ([]Entry, error)
	MarkArchived(ctx context.Context, ids []primitive.ObjectID) error
}

type RepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRepository(mongodb *database.MongodbDB) Repository {
	return &RepositoryImpl{
		Collection: mongodb.DB.Collection("audit_log"),
	}
}

// Append is the only write path. There is no update or delete on this
// collection anywhere in the codebase.
func (r *RepositoryImpl) Append(ctx context.Context, entry *Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if _, err := r.Collection.InsertOne(ctx, entry); err != nil {
		return apperrors.Persistence("failed to append audit entry", err)
	}
	return nil
}

func (r *RepositoryImpl) List(ctx context.Context, filters map[string]interface{}, limit, offset int64) ([]Entry, error) {
	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.M{"timestamp": -1})

	query := bson.M{}
	for k, v := range filters {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		query[k] = v
	}

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list audit entries", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, apperrors.Persistence("failed to decode audit entries", err)
	}
	return entries, nil
}

func (r *RepositoryImpl) ListUnarchived(ctx context.Context, limit int64) ([]Entry, error) {
	opts := options.Find().SetLimit(limit).SetSort(bson.M{"timestamp": 1})
	cursor, err := r.Collection.Find(ctx, bson.M{"archived": false}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list unarchived audit entries", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, apperrors.Persistence("failed to decode audit entries", err)
	}
	return entries, nil
}

// MarkArchived flags entries mirrored to the relational archive. The flag is
// bookkeeping for the archiver, not a mutation of the audited facts.
func (r *RepositoryImpl) MarkArchived(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.Collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"archived": true}},
	)
	if err != nil {
		return apperrors.Persistence("failed to mark audit entries archived", err)
	}
	return nil
}
