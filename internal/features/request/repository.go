package request

import (
	"context"
	"errors"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrStaleVersion marks an optimistic-concurrency miss: the request row
// changed between the snapshot read and the version-filtered write. The
// surrounding command is safe to retry.
var ErrStaleVersion = errors.New("stale request version")

// Repository is the store contract the service runs against. The request, its
// approvers and its event stream are always mutated together inside one
// transaction; WithTransaction supplies the session-bound context every other
// method must be called with for writes.
type Repository interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Insert(ctx context.Context, req *ApprovalRequest, approvers []Approver) error
	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	// GetForUpdate reads the request including its version counter for a
	// later version-filtered write. Must run inside WithTransaction.
	GetForUpdate(ctx context.Context, id string) (*ApprovalRequest, error)
	ListApprovers(ctx context.Context, requestID primitive.ObjectID) ([]Approver, error)
	// SaveDecision records a decision on an approver row that has not been
	// signed yet; a signed row is never matched, so an immutable decision
	// cannot be overwritten at this level either.
	SaveDecision(ctx context.Context, approver *Approver) error
	// AppendEvent allocates the next per-request sequence number and inserts
	// the event. The sequence lives on the request row, so concurrent
	// transactions appending to the same request conflict and serialize.
	AppendEvent(ctx context.Context, requestID primitive.ObjectID, actor Actor, action EventAction, comment string) (*Event, error)
	InsertComment(ctx context.Context, comment *Comment) error
	// SetStatus writes the aggregated status behind a version filter and
	// bumps the version. Returns ErrStaleVersion when the filter misses.
	SetStatus(ctx context.Context, id primitive.ObjectID, fromVersion int64, status Status, completedAt *time.Time) error
	SetDueDate(ctx context.Context, id primitive.ObjectID, due *time.Time) error

	ListEvents(ctx context.Context, requestID primitive.ObjectID) ([]Event, error)
	ListComments(ctx context.Context, requestID primitive.ObjectID, includeInternal bool) ([]Comment, error)
	// ListOverdue returns requests still decidable whose due date has passed.
	ListOverdue(ctx context.Context, now time.Time) ([]ApprovalRequest, error)

	EnsureIndexes(ctx context.Context) error
}

type RepositoryImpl struct {
	client    *mongo.Client
	requests  *mongo.Collection
	approvers *mongo.Collection
	events    *mongo.Collection
	comments  *mongo.Collection
}

func NewRepository(mongodb *database.MongodbDB) Repository {
	return &RepositoryImpl{
		client:    mongodb.Client,
		requests:  mongodb.DB.Collection("approval_requests"),
		approvers: mongodb.DB.Collection("approvers"),
		events:    mongodb.DB.Collection("events"),
		comments:  mongodb.DB.Collection("comments"),
	}
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return apperrors.Persistence("failed to start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func (r *RepositoryImpl) Insert(ctx context.Context, req *ApprovalRequest, approvers []Approver) error {
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	if _, err := r.requests.InsertOne(ctx, req); err != nil {
		return apperrors.Persistence("failed to insert approval request", err)
	}

	docs := make([]interface{}, len(approvers))
	for i := range approvers {
		approvers[i].ID = primitive.NewObjectID()
		approvers[i].RequestID = req.ID
		docs[i] = approvers[i]
	}
	if _, err := r.approvers.InsertMany(ctx, docs); err != nil {
		return apperrors.Persistence("failed to insert approvers", err)
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("approval request %q does not exist", id)
	}

	var req ApprovalRequest
	err = r.requests.FindOne(ctx, bson.M{"_id": oid}).Decode(&req)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("approval request %q does not exist", id)
		}
		return nil, apperrors.Persistence("failed to load approval request", err)
	}
	return &req, nil
}

func (r *RepositoryImpl) GetForUpdate(ctx context.Context, id string) (*ApprovalRequest, error) {
	// Inside a session transaction the read is snapshot-consistent with
	// every later read; the version carried on the row backs the
	// optimistic check in SetStatus.
	return r.Get(ctx, id)
}

func (r *RepositoryImpl) ListApprovers(ctx context.Context, requestID primitive.ObjectID) ([]Approver, error) {
	cursor, err := r.approvers.Find(ctx, bson.M{"request_id": requestID})
	if err != nil {
		return nil, apperrors.Persistence("failed to list approvers", err)
	}
	defer cursor.Close(ctx)

	var approvers []Approver
	if err = cursor.All(ctx, &approvers); err != nil {
		return nil, apperrors.Persistence("failed to decode approvers", err)
	}
	return approvers, nil
}

func (r *RepositoryImpl) SaveDecision(ctx context.Context, approver *Approver) error {
	filter := bson.M{
		"request_id":       approver.RequestID,
		"user_id":          approver.UserID,
		"signature.signed": false,
	}
	update := bson.M{
		"$set": bson.M{
			"decision":   approver.Decision,
			"decided_at": approver.DecidedAt,
			"comment":    approver.Comment,
			"signature":  approver.Signature,
		},
	}
	result, err := r.approvers.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperrors.Persistence("failed to record decision", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.Conflict("approver %s has already decided", approver.UserID)
	}
	return nil
}

func (r *RepositoryImpl) AppendEvent(ctx context.Context, requestID primitive.ObjectID, actor Actor, action EventAction, comment string) (*Event, error) {
	// Allocate the sequence from the request row. This write also makes any
	// two transactions touching the same request conflict, which is what
	// serializes concurrent decisions at the storage layer.
	var req ApprovalRequest
	err := r.requests.FindOneAndUpdate(ctx,
		bson.M{"_id": requestID},
		bson.M{"$inc": bson.M{"event_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.NotFound("approval request %q does not exist", requestID.Hex())
		}
		return nil, apperrors.Persistence("failed to allocate event sequence", err)
	}

	event := &Event{
		ID:        primitive.NewObjectID(),
		RequestID: requestID,
		Seq:       req.EventSeq,
		Actor:     actor,
		Action:    action,
		Comment:   comment,
		Timestamp: time.Now(),
	}
	if _, err := r.events.InsertOne(ctx, event); err != nil {
		return nil, apperrors.Persistence("failed to append event", err)
	}
	return event, nil
}

func (r *RepositoryImpl) InsertComment(ctx context.Context, comment *Comment) error {
	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	comment.CreatedAt = time.Now()
	if _, err := r.comments.InsertOne(ctx, comment); err != nil {
		return apperrors.Persistence("failed to insert comment", err)
	}
	return nil
}

func (r *RepositoryImpl) SetStatus(ctx context.Context, id primitive.ObjectID, fromVersion int64, status Status, completedAt *time.Time) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if completedAt != nil {
		set["completed_at"] = completedAt
	}

	result, err := r.requests.UpdateOne(ctx,
		bson.M{"_id": id, "version": fromVersion},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return apperrors.Persistence("failed to update status", err)
	}
	if result.MatchedCount == 0 {
		return &apperrors.Error{
			Kind:    apperrors.KindConflict,
			Message: "approval request was modified concurrently",
			Err:     ErrStaleVersion,
		}
	}
	return nil
}

func (r *RepositoryImpl) SetDueDate(ctx context.Context, id primitive.ObjectID, due *time.Time) error {
	update := bson.M{
		"$set":   bson.M{"updated_at": time.Now()},
		"$inc":   bson.M{"version": 1},
		"$unset": bson.M{},
	}
	if due != nil {
		update["$set"].(bson.M)["due_date"] = due
	} else {
		update["$unset"].(bson.M)["due_date"] = ""
	}

	result, err := r.requests.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return apperrors.Persistence("failed to update due date", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("approval request %q does not exist", id.Hex())
	}
	return nil
}

func (r *RepositoryImpl) ListEvents(ctx context.Context, requestID primitive.ObjectID) ([]Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := r.events.Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list events", err)
	}
	defer cursor.Close(ctx)

	var events []Event
	if err = cursor.All(ctx, &events); err != nil {
		return nil, apperrors.Persistence("failed to decode events", err)
	}
	return events, nil
}

func (r *RepositoryImpl) ListComments(ctx context.Context, requestID primitive.ObjectID, includeInternal bool) ([]Comment, error) {
	filter := bson.M{"request_id": requestID}
	if !includeInternal {
		filter["internal"] = false
	}
	opts := options.Find().SetSort(bson.M{"created_at": 1})
	cursor, err := r.comments.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.Persistence("failed to list comments", err)
	}
	defer cursor.Close(ctx)

	var comments []Comment
	if err = cursor.All(ctx, &comments); err != nil {
		return nil, apperrors.Persistence("failed to decode comments", err)
	}
	return comments, nil
}

func (r *RepositoryImpl) ListOverdue(ctx context.Context, now time.Time) ([]ApprovalRequest, error) {
	filter := bson.M{
		"status":   bson.M{"$in": []Status{StatusPending, StatusChangesRequested}},
		"due_date": bson.M{"$lt": now},
	}
	cursor, err := r.requests.Find(ctx, filter)
	if err != nil {
		return nil, apperrors.Persistence("failed to list overdue requests", err)
	}
	defer cursor.Close(ctx)

	var requests []ApprovalRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, apperrors.Persistence("failed to decode overdue requests", err)
	}
	return requests, nil
}

func (r *RepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.approvers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.requests.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}},
	})
	return err
}
