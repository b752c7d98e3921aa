package request

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/features/audit"

	"go.uber.org/zap"
)

// maxDecisionRetries bounds how often a decision command is retried after
// losing an optimistic-concurrency race before the conflict is surfaced.
const maxDecisionRetries = 3

// Dispatcher receives (requestID, eventType) strictly after the transaction
// commits. Delivery is fire-and-forget and at-least-once; a dispatch failure
// must never reverse a committed decision.
type Dispatcher interface {
	Dispatch(requestID string, eventType EventAction)
}

// EventSink observes committed events (live feeds, automation rules).
// Implementations must not block.
type EventSink interface {
	OnEvent(event Event)
}

type ApproverInput struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsRequired bool   `json:"is_required"`
}

type CreateInput struct {
	Subject        Subject           `json:"subject"`
	Approvers      []ApproverInput   `json:"approvers"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	InitialComment string            `json:"initial_comment,omitempty"`
	Actor          Actor             `json:"-"`
	IPAddress      string            `json:"-"`
}

type DecisionInput struct {
	Actor     Actor
	Decision  Decision
	Comment   string
	IPAddress string
	UserAgent string
}

type CommentInput struct {
	Actor     Actor
	Text      string
	Internal  bool
	IPAddress string
}

// Detail is the read model returned to callers: the request, its panel and
// the derived overdue flag.
type Detail struct {
	Request   *ApprovalRequest `json:"request"`
	Approvers []Approver       `json:"approvers"`
	IsOverdue bool             `json:"is_overdue"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*ApprovalRequest, error)
	SubmitDecision(ctx context.Context, requestID string, input DecisionInput) (*ApprovalRequest, error)
	AddComment(ctx context.Context, requestID string, input CommentInput) (*Comment, error)
	UpdateDueDate(ctx context.Context, requestID string, due *time.Time, actor Actor, isAdmin bool) error
	Get(ctx context.Context, requestID string) (*Detail, error)
	History(ctx context.Context, requestID string) ([]Event, error)
	Comments(ctx context.Context, requestID string, includeInternal bool) ([]Comment, error)
}

type ServiceImpl struct {
	Repo       Repository
	Audit      audit.Service
	Dispatcher Dispatcher
	Sinks      []EventSink
	Logger     *zap.Logger
}

func NewService(repo Repository, auditService audit.Service, dispatcher Dispatcher, sinks []EventSink, logger *zap.Logger) Service {
	return &ServiceImpl{
		Repo:       repo,
		Audit:      auditService,
		Dispatcher: dispatcher,
		Sinks:      sinks,
		Logger:     logger,
	}
}

func (s *ServiceImpl) Create(ctx context.Context, input CreateInput) (*ApprovalRequest, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	now := time.Now()
	req := &ApprovalRequest{
		Subject:   input.Subject,
		Status:    StatusPending,
		CreatedBy: input.Actor,
		CreatedAt: now,
		UpdatedAt: now,
		DueDate:   input.DueDate,
		Metadata:  input.Metadata,
	}

	approvers := make([]Approver, len(input.Approvers))
	for i, a := range input.Approvers {
		approvers[i] = Approver{
			UserID:     a.UserID,
			Name:       a.Name,
			Role:       a.Role,
			IsRequired: a.IsRequired,
		}
	}

	var created *Event
	err := s.Repo.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.Repo.Insert(txCtx, req, approvers); err != nil {
			return err
		}

		var err error
		created, err = s.Repo.AppendEvent(txCtx, req.ID, input.Actor, EventCreated, input.InitialComment)
		if err != nil {
			return err
		}

		if input.InitialComment != "" {
			comment := &Comment{
				RequestID: req.ID,
				Author:    input.Actor,
				Text:      input.InitialComment,
			}
			if err := s.Repo.InsertComment(txCtx, comment); err != nil {
				return err
			}
		}

		return s.Audit.Record(txCtx, req.ID, input.Actor.ID, input.Actor.Name, string(EventCreated), map[string]interface{}{
			"subject":   input.Subject,
			"approvers": len(approvers),
		}, input.IPAddress)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(req.ID.Hex(), EventCreated, created)
	return req, nil
}

func (s *ServiceImpl) SubmitDecision(ctx context.Context, requestID string, input DecisionInput) (*ApprovalRequest, error) {
	if !input.Decision.Valid() {
		return nil, apperrors.Validation("decision must be one of approved, rejected, changes_requested")
	}

	var lastErr error
	for attempt := 0; attempt < maxDecisionRetries; attempt++ {
		req, events, err := s.decideOnce(ctx, requestID, input)
		if err == nil {
			for _, e := range events {
				s.afterCommit(requestID, e.Action, e)
			}
			if req.Status.Terminal() || req.Status == StatusChangesRequested {
				s.dispatch(requestID, EventStatusChanged)
			}
			return req, nil
		}
		if !errors.Is(err, ErrStaleVersion) {
			return nil, err
		}
		// Lost the optimistic race: the sibling transaction committed
		// first. Re-run against the fresh registry.
		lastErr = err
		s.Logger.Debug("retrying decision after concurrent update",
			zap.String("request_id", requestID),
			zap.String("actor_id", input.Actor.ID),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// decideOnce runs one decision transaction: snapshot read of the registry,
// validation, decision write, aggregate recomputation, version-checked status
// write, event and audit appends. The aggregate is commutative over the
// current decision set, so correctness needs each transaction to observe a
// consistent snapshot, not any particular commit order.
func (s *ServiceImpl) decideOnce(ctx context.Context, requestID string, input DecisionInput) (*ApprovalRequest, []*Event, error) {
	var (
		req    *ApprovalRequest
		events []*Event
	)

	err := s.Repo.WithTransaction(ctx, func(txCtx context.Context) error {
		events = events[:0]

		var err error
		req, err = s.Repo.GetForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}

		if req.Status != StatusPending {
			return apperrors.Conflict("request is %s and no longer accepts decisions", req.Status)
		}

		approvers, err := s.Repo.ListApprovers(txCtx, req.ID)
		if err != nil {
			return err
		}

		idx := -1
		for i := range approvers {
			if approvers[i].UserID == input.Actor.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperrors.Permission("user %s is not an approver on this request", input.Actor.ID)
		}
		if approvers[idx].Decided() {
			return apperrors.Conflict("approver %s has already decided", input.Actor.ID)
		}

		now := time.Now()
		approvers[idx].Decision = input.Decision
		approvers[idx].DecidedAt = &now
		approvers[idx].Comment = input.Comment
		approvers[idx].Signature = ESignature{
			Signed:    true,
			SignedAt:  &now,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
		}
		if err := s.Repo.SaveDecision(txCtx, &approvers[idx]); err != nil {
			return err
		}

		decisionEvent, err := s.Repo.AppendEvent(txCtx, req.ID, input.Actor, DecisionEvent(input.Decision), input.Comment)
		if err != nil {
			return err
		}
		events = append(events, decisionEvent)

		newStatus := Aggregate(approvers)
		var completedAt *time.Time
		if newStatus.Terminal() {
			completedAt = &now
		}

		// Written even when the status is unchanged: the version bump is
		// what makes two mutually stale transactions collide instead of
		// both committing a status computed from a partial registry.
		if err := s.Repo.SetStatus(txCtx, req.ID, req.Version, newStatus, completedAt); err != nil {
			return err
		}

		if newStatus != req.Status {
			statusEvent, err := s.Repo.AppendEvent(txCtx, req.ID, input.Actor, EventStatusChanged, string(newStatus))
			if err != nil {
				return err
			}
			events = append(events, statusEvent)
		}

		if err := s.Audit.Record(txCtx, req.ID, input.Actor.ID, input.Actor.Name, string(DecisionEvent(input.Decision)), map[string]interface{}{
			"decision":   input.Decision,
			"new_status": newStatus,
			"signed_at":  now,
		}, input.IPAddress); err != nil {
			return err
		}

		req.Status = newStatus
		req.CompletedAt = completedAt
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return req, events, nil
}

func (s *ServiceImpl) AddComment(ctx context.Context, requestID string, input CommentInput) (*Comment, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, apperrors.Validation("comment text must not be empty")
	}

	var (
		comment *Comment
		event   *Event
	)
	err := s.Repo.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.Repo.GetForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}

		if err := s.checkReadAccess(txCtx, req, input.Actor.ID); err != nil {
			return err
		}

		comment = &Comment{
			RequestID: req.ID,
			Author:    input.Actor,
			Text:      input.Text,
			Internal:  input.Internal,
		}
		if err := s.Repo.InsertComment(txCtx, comment); err != nil {
			return err
		}

		event, err = s.Repo.AppendEvent(txCtx, req.ID, input.Actor, EventCommentAdded, input.Text)
		if err != nil {
			return err
		}

		return s.Audit.Record(txCtx, req.ID, input.Actor.ID, input.Actor.Name, string(EventCommentAdded), map[string]interface{}{
			"internal": input.Internal,
		}, input.IPAddress)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(requestID, EventCommentAdded, event)
	return comment, nil
}

func (s *ServiceImpl) UpdateDueDate(ctx context.Context, requestID string, due *time.Time, actor Actor, isAdmin bool) error {
	var event *Event
	err := s.Repo.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.Repo.GetForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}

		if req.CreatedBy.ID != actor.ID && !isAdmin {
			return apperrors.Permission("only the request creator or an administrator may change the due date")
		}

		if err := s.Repo.SetDueDate(txCtx, req.ID, due); err != nil {
			return err
		}

		detail := "due date cleared"
		if due != nil {
			detail = "due " + due.Format(time.RFC3339)
		}
		event, err = s.Repo.AppendEvent(txCtx, req.ID, actor, EventDueDateUpdated, detail)
		if err != nil {
			return err
		}

		return s.Audit.Record(txCtx, req.ID, actor.ID, actor.Name, string(EventDueDateUpdated), map[string]interface{}{
			"due_date": due,
		}, "")
	})
	if err != nil {
		return err
	}

	s.afterCommit(requestID, EventDueDateUpdated, event)
	return nil
}

func (s *ServiceImpl) Get(ctx context.Context, requestID string) (*Detail, error) {
	req, err := s.Repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	approvers, err := s.Repo.ListApprovers(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Request:   req,
		Approvers: approvers,
		IsOverdue: IsOverdue(req, time.Now()),
	}, nil
}

func (s *ServiceImpl) History(ctx context.Context, requestID string) ([]Event, error) {
	req, err := s.Repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListEvents(ctx, req.ID)
}

func (s *ServiceImpl) Comments(ctx context.Context, requestID string, includeInternal bool) ([]Comment, error) {
	req, err := s.Repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListComments(ctx, req.ID, includeInternal)
}

// checkReadAccess allows the creator and any approver.
func (s *ServiceImpl) checkReadAccess(ctx context.Context, req *ApprovalRequest, userID string) error {
	if req.CreatedBy.ID == userID {
		return nil
	}
	approvers, err := s.Repo.ListApprovers(ctx, req.ID)
	if err != nil {
		return err
	}
	for i := range approvers {
		if approvers[i].UserID == userID {
			return nil
		}
	}
	return apperrors.Permission("user %s has no access to this request", userID)
}

// afterCommit fans a committed event out to the sinks and the notification
// dispatcher. Nothing here can fail the command: the transaction is already
// durable.
func (s *ServiceImpl) afterCommit(requestID string, action EventAction, event *Event) {
	if event != nil {
		for _, sink := range s.Sinks {
			sink.OnEvent(*event)
		}
	}
	if action == EventCreated {
		s.dispatch(requestID, action)
	}
}

func (s *ServiceImpl) dispatch(requestID string, action EventAction) {
	if s.Dispatcher == nil {
		return
	}
	go s.Dispatcher.Dispatch(requestID, action)
}

func validateCreate(input *CreateInput) error {
	var missing []string
	if strings.TrimSpace(input.Subject.Type) == "" {
		missing = append(missing, "subject.type")
	}
	if strings.TrimSpace(input.Subject.ID) == "" {
		missing = append(missing, "subject.id")
	}
	if strings.TrimSpace(input.Subject.Title) == "" {
		missing = append(missing, "subject.title")
	}
	if len(missing) > 0 {
		return apperrors.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	if len(input.Approvers) == 0 {
		return apperrors.Validation("at least one approver is required")
	}

	seen := make(map[string]bool, len(input.Approvers))
	hasRequired := false
	for _, a := range input.Approvers {
		if strings.TrimSpace(a.UserID) == "" {
			return apperrors.Validation("approver user_id must not be empty")
		}
		if seen[a.UserID] {
			return apperrors.Validation("approver %s is listed twice", a.UserID)
		}
		seen[a.UserID] = true
		if a.IsRequired {
			hasRequired = true
		}
	}
	// Without a required approver the aggregate can never leave pending,
	// so the request would be stuck by construction.
	if !hasRequired {
		return apperrors.Validation("at least one approver must be marked required")
	}
	return nil
}
