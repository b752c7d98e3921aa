package request

import (
	"context"
	"testing"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/features/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeRepo is an in-memory store implementing the same contract as the Mongo
// repository, including transaction rollback and the version-filtered status
// write.
type fakeRepo struct {
	req       *ApprovalRequest
	approvers []Approver
	events    []Event
	comments  []Comment
	seq       int64

	// staleWrites makes SetStatus miss its version filter this many times,
	// simulating a concurrent transaction committing first.
	staleWrites int
	staleHit    bool
	// onStale mutates the store the way the winning sibling transaction
	// would have, applied after the losing transaction rolls back.
	onStale func(r *fakeRepo)
}

type repoSnapshot struct {
	req       *ApprovalRequest
	approvers []Approver
	events    []Event
	comments  []Comment
	seq       int64
}

func (r *fakeRepo) snapshot() repoSnapshot {
	s := repoSnapshot{seq: r.seq}
	if r.req != nil {
		cp := *r.req
		s.req = &cp
	}
	s.approvers = append([]Approver(nil), r.approvers...)
	s.events = append([]Event(nil), r.events...)
	s.comments = append([]Comment(nil), r.comments...)
	return s
}

func (r *fakeRepo) restore(s repoSnapshot) {
	r.req = s.req
	r.approvers = s.approvers
	r.events = s.events
	r.comments = s.comments
	r.seq = s.seq
}

func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := r.snapshot()
	err := fn(ctx)
	if err != nil {
		r.restore(snap)
		if r.staleHit {
			r.staleHit = false
			if r.onStale != nil {
				r.onStale(r)
			}
		}
	}
	return err
}

func (r *fakeRepo) Insert(ctx context.Context, req *ApprovalRequest, approvers []Approver) error {
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	cp := *req
	r.req = &cp
	for i := range approvers {
		approvers[i].ID = primitive.NewObjectID()
		approvers[i].RequestID = req.ID
	}
	r.approvers = append([]Approver(nil), approvers...)
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	if r.req == nil || r.req.ID.Hex() != id {
		return nil, apperrors.NotFound("approval request not found")
	}
	cp := *r.req
	return &cp, nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, id string) (*ApprovalRequest, error) {
	return r.Get(ctx, id)
}

func (r *fakeRepo) ListApprovers(ctx context.Context, requestID primitive.ObjectID) ([]Approver, error) {
	return append([]Approver(nil), r.approvers...), nil
}

func (r *fakeRepo) SaveDecision(ctx context.Context, approver *Approver) error {
	for i := range r.approvers {
		if r.approvers[i].UserID == approver.UserID {
			if r.approvers[i].Signature.Signed {
				return apperrors.Conflict("approver %s has already decided", approver.UserID)
			}
			r.approvers[i] = *approver
			return nil
		}
	}
	return apperrors.NotFound("approver not found")
}

func (r *fakeRepo) AppendEvent(ctx context.Context, requestID primitive.ObjectID, actor Actor, action EventAction, comment string) (*Event, error) {
	r.seq++
	e := Event{
		ID:        primitive.NewObjectID(),
		RequestID: requestID,
		Seq:       r.seq,
		Actor:     actor,
		Action:    action,
		Comment:   comment,
		Timestamp: time.Now(),
	}
	r.events = append(r.events, e)
	return &e, nil
}

func (r *fakeRepo) InsertComment(ctx context.Context, comment *Comment) error {
	comment.ID = primitive.NewObjectID()
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *fakeRepo) SetStatus(ctx context.Context, id primitive.ObjectID, fromVersion int64, status Status, completedAt *time.Time) error {
	if r.staleWrites > 0 {
		r.staleWrites--
		r.staleHit = true
		return &apperrors.Error{Kind: apperrors.KindConflict, Message: "request was modified concurrently", Err: ErrStaleVersion}
	}
	if r.req.Version != fromVersion {
		return &apperrors.Error{Kind: apperrors.KindConflict, Message: "request was modified concurrently", Err: ErrStaleVersion}
	}
	r.req.Version++
	r.req.Status = status
	r.req.CompletedAt = completedAt
	return nil
}

func (r *fakeRepo) SetDueDate(ctx context.Context, id primitive.ObjectID, due *time.Time) error {
	r.req.DueDate = due
	return nil
}

func (r *fakeRepo) ListEvents(ctx context.Context, requestID primitive.ObjectID) ([]Event, error) {
	return append([]Event(nil), r.events...), nil
}

func (r *fakeRepo) ListComments(ctx context.Context, requestID primitive.ObjectID, includeInternal bool) ([]Comment, error) {
	var out []Comment
	for _, c := range r.comments {
		if c.Internal && !includeInternal {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeRepo) ListOverdue(ctx context.Context, now time.Time) ([]ApprovalRequest, error) {
	if r.req != nil && IsOverdue(r.req, now) {
		return []ApprovalRequest{*r.req}, nil
	}
	return nil, nil
}

func (r *fakeRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(ctx context.Context, requestID primitive.ObjectID, actorID, actorName, action string, details map[string]interface{}, ip string) error {
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeAudit) ListEntries(ctx context.Context, filters map[string]interface{}, page, limit int64) ([]audit.Entry, error) {
	return nil, nil
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) OnEvent(event Event) {
	s.events = append(s.events, event)
}

func newTestService(repo *fakeRepo) (*ServiceImpl, *fakeAudit, *recordingSink) {
	auditSvc := &fakeAudit{}
	sink := &recordingSink{}
	svc := &ServiceImpl{
		Repo:   repo,
		Audit:  auditSvc,
		Sinks:  []EventSink{sink},
		Logger: zap.NewNop(),
	}
	return svc, auditSvc, sink
}

func createInput() CreateInput {
	return CreateInput{
		Subject: Subject{Type: "document", ID: "doc-1", Title: "Q1 contract"},
		Approvers: []ApproverInput{
			{UserID: "u1", Name: "Ana", IsRequired: true},
			{UserID: "u2", Name: "Ben", IsRequired: true},
			{UserID: "u3", Name: "Cleo", IsRequired: false},
		},
		Actor: Actor{ID: "creator", Name: "Dana"},
	}
}

func TestCreate(t *testing.T) {
	repo := &fakeRepo{}
	svc, auditSvc, sink := newTestService(repo)

	req, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, req.Status)
	assert.Len(t, repo.approvers, 3)
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventCreated, repo.events[0].Action)
	assert.Equal(t, []string{string(EventCreated)}, auditSvc.actions)
	assert.Len(t, sink.events, 1)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"missing subject title", func(in *CreateInput) { in.Subject.Title = "" }},
		{"missing subject type", func(in *CreateInput) { in.Subject.Type = "" }},
		{"no approvers", func(in *CreateInput) { in.Approvers = nil }},
		{"duplicate approver", func(in *CreateInput) {
			in.Approvers = append(in.Approvers, ApproverInput{UserID: "u1", IsRequired: true})
		}},
		{"empty approver id", func(in *CreateInput) { in.Approvers[0].UserID = " " }},
		{"no required approver", func(in *CreateInput) {
			for i := range in.Approvers {
				in.Approvers[i].IsRequired = false
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			svc, _, _ := newTestService(repo)

			in := createInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
			assert.Nil(t, repo.req)
		})
	}
}

func submit(t *testing.T, svc Service, repo *fakeRepo, userID string, d Decision) (*ApprovalRequest, error) {
	t.Helper()
	return svc.SubmitDecision(context.Background(), repo.req.ID.Hex(), DecisionInput{
		Actor:     Actor{ID: userID},
		Decision:  d,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	})
}

func TestSubmitDecisionApprovalFlow(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, sink := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	req, err := submit(t, svc, repo, "u1", DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Nil(t, req.CompletedAt)

	req, err = submit(t, svc, repo, "u2", DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	require.NotNil(t, req.CompletedAt)

	// created, approved, approved, status_changed
	require.Len(t, repo.events, 4)
	assert.Equal(t, EventStatusChanged, repo.events[3].Action)
	assert.Equal(t, string(StatusApproved), repo.events[3].Comment)
	assert.Len(t, sink.events, 4)

	// signature captured with the decision
	for _, a := range repo.approvers[:2] {
		assert.True(t, a.Signature.Signed)
		assert.Equal(t, "10.0.0.1", a.Signature.IPAddress)
		assert.Equal(t, "test-agent", a.Signature.UserAgent)
	}
}

func TestSubmitDecisionRequiredRejection(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	req, err := submit(t, svc, repo, "u1", DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	assert.NotNil(t, req.CompletedAt)

	// terminal: the second required approver is locked out
	_, err = submit(t, svc, repo, "u2", DecisionApproved)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "got %v", err)
}

func TestSubmitDecisionOptionalRejectionDoesNotVeto(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	req, err := submit(t, svc, repo, "u3", DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)

	_, err = submit(t, svc, repo, "u1", DecisionApproved)
	require.NoError(t, err)
	req, err = submit(t, svc, repo, "u2", DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
}

func TestSubmitDecisionChangesRequestedFreezesIntake(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	req, err := submit(t, svc, repo, "u1", DecisionChangesRequested)
	require.NoError(t, err)
	assert.Equal(t, StatusChangesRequested, req.Status)
	assert.Nil(t, req.CompletedAt)

	_, err = submit(t, svc, repo, "u2", DecisionApproved)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "got %v", err)
}

func TestSubmitDecisionNonApprover(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = submit(t, svc, repo, "intruder", DecisionApproved)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPermission), "got %v", err)
	assert.Len(t, repo.events, 1)
}

func TestSubmitDecisionAlreadyDecided(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = submit(t, svc, repo, "u1", DecisionApproved)
	require.NoError(t, err)

	_, err = submit(t, svc, repo, "u1", DecisionRejected)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "got %v", err)

	// the signed decision is untouched
	assert.Equal(t, DecisionApproved, repo.approvers[0].Decision)
}

func TestSubmitDecisionInvalidDecision(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = submit(t, svc, repo, "u1", Decision("maybe"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
}

// A lost optimistic race is retried against the fresh registry and the retry
// sees the sibling's committed decision.
func TestSubmitDecisionRetriesAfterStaleVersion(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	repo.staleWrites = 1
	repo.onStale = func(r *fakeRepo) {
		// the concurrent transaction that won: u2 approved
		now := time.Now()
		for i := range r.approvers {
			if r.approvers[i].UserID == "u2" {
				r.approvers[i].Decision = DecisionApproved
				r.approvers[i].DecidedAt = &now
				r.approvers[i].Signature = ESignature{Signed: true, SignedAt: &now}
			}
		}
		r.req.Version++
	}

	req, err := submit(t, svc, repo, "u1", DecisionApproved)
	require.NoError(t, err)

	// both required approvals visible after the retry
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, 0, repo.staleWrites)
}

func TestSubmitDecisionGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	repo.staleWrites = maxDecisionRetries

	_, err = submit(t, svc, repo, "u1", DecisionApproved)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestAddComment(t *testing.T) {
	repo := &fakeRepo{}
	svc, auditSvc, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	c, err := svc.AddComment(context.Background(), repo.req.ID.Hex(), CommentInput{
		Actor:    Actor{ID: "u1"},
		Text:     "please double check the totals",
		Internal: true,
	})
	require.NoError(t, err)
	assert.True(t, c.Internal)

	// mirrored into the event stream
	require.Len(t, repo.events, 2)
	assert.Equal(t, EventCommentAdded, repo.events[1].Action)
	assert.Contains(t, auditSvc.actions, string(EventCommentAdded))

	// internal comments filtered for external readers
	visible, err := svc.Comments(context.Background(), repo.req.ID.Hex(), false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.Comments(context.Background(), repo.req.ID.Hex(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAddCommentDeniedForOutsider(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = svc.AddComment(context.Background(), repo.req.ID.Hex(), CommentInput{
		Actor: Actor{ID: "outsider"},
		Text:  "hello",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPermission), "got %v", err)
}

func TestUpdateDueDate(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	due := time.Now().Add(48 * time.Hour)
	err = svc.UpdateDueDate(context.Background(), repo.req.ID.Hex(), &due, Actor{ID: "creator"}, false)
	require.NoError(t, err)
	require.NotNil(t, repo.req.DueDate)

	// not the creator, not an admin
	err = svc.UpdateDueDate(context.Background(), repo.req.ID.Hex(), nil, Actor{ID: "u1"}, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPermission), "got %v", err)

	// an admin may clear it
	err = svc.UpdateDueDate(context.Background(), repo.req.ID.Hex(), nil, Actor{ID: "u1"}, true)
	require.NoError(t, err)
	assert.Nil(t, repo.req.DueDate)
}

func TestHistoryIsAppendOnlyAndOrdered(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = submit(t, svc, repo, "u1", DecisionApproved)
	require.NoError(t, err)
	_, err = svc.AddComment(context.Background(), repo.req.ID.Hex(), CommentInput{Actor: Actor{ID: "u2"}, Text: "reviewing"})
	require.NoError(t, err)
	_, err = submit(t, svc, repo, "u2", DecisionApproved)
	require.NoError(t, err)

	events, err := svc.History(context.Background(), repo.req.ID.Hex())
	require.NoError(t, err)
	require.Len(t, events, 5)

	var last int64
	for _, e := range events {
		assert.Greater(t, e.Seq, last)
		last = e.Seq
	}
	assert.Equal(t, EventCreated, events[0].Action)
	assert.Equal(t, EventStatusChanged, events[len(events)-1].Action)
}
