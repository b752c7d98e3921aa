package automation

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/features/notification"
	"go-approvals/internal/features/request"

	"github.com/d5/tengo/v2"
	"go.uber.org/zap"
)

const evalTimeout = 10 * time.Second

type Service interface {
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error

	// OnEvent makes the engine a sink for committed workflow events.
	OnEvent(event request.Event)
}

type ServiceImpl struct {
	Repo          Repository
	Requests      request.Repository
	Notifications notification.Service
	Logger        *zap.Logger
}

func NewService(repo Repository, requests request.Repository, notifications notification.Service, logger *zap.Logger) Service {
	return &ServiceImpl{
		Repo:          repo,
		Requests:      requests,
		Notifications: notifications,
		Logger:        logger,
	}
}

func (s *ServiceImpl) CreateRule(ctx context.Context, rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.Repo.Create(ctx, rule)
}

func (s *ServiceImpl) GetRule(ctx context.Context, id string) (*Rule, error) {
	return s.Repo.Get(ctx, id)
}

func (s *ServiceImpl) ListRules(ctx context.Context) ([]Rule, error) {
	return s.Repo.List(ctx)
}

func (s *ServiceImpl) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.Repo.Update(ctx, rule)
}

func (s *ServiceImpl) DeleteRule(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

// OnEvent evaluates active rules for the event's action. Rule failures are
// logged and never reach the decision path; the event is already committed.
func (s *ServiceImpl) OnEvent(event request.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		defer cancel()

		if err := s.run(ctx, event); err != nil {
			s.Logger.Error("automation run failed",
				zap.String("request_id", event.RequestID.Hex()),
				zap.String("action", string(event.Action)),
				zap.Error(err),
			)
		}
	}()
}

func (s *ServiceImpl) run(ctx context.Context, event request.Event) error {
	rules, err := s.Repo.ListActiveByTrigger(ctx, event.Action)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	req, err := s.Requests.Get(ctx, event.RequestID.Hex())
	if err != nil {
		return err
	}

	for _, rule := range rules {
		matched, err := s.evaluate(ctx, rule, req, event)
		if err != nil {
			s.Logger.Warn("automation rule evaluation failed",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			continue
		}
		if !matched {
			continue
		}
		s.fire(ctx, rule, req, event)
	}
	return nil
}

func (s *ServiceImpl) evaluate(ctx context.Context, rule Rule, req *request.ApprovalRequest, event request.Event) (bool, error) {
	if rule.Condition == "" {
		return true, nil
	}

	script := tengo.NewScript([]byte(rule.Condition))
	script.Add("request", requestSnapshot(req))
	script.Add("event", eventSnapshot(event))

	compiled, err := script.RunContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to run condition script: %w", err)
	}

	match := compiled.Get("match")
	if match.IsUndefined() {
		return false, fmt.Errorf("condition script did not set 'match'")
	}
	return match.Bool(), nil
}

func (s *ServiceImpl) fire(ctx context.Context, rule Rule, req *request.ApprovalRequest, event request.Event) {
	message := rule.Message
	if message == "" {
		message = fmt.Sprintf("Rule %q matched on %q for request %s", rule.Name, event.Action, req.Subject.Title)
	}

	for _, userID := range rule.NotifyUserIDs {
		n := &notification.Notification{
			UserID:    userID,
			RequestID: req.ID,
			Type:      notification.TypeAutomation,
			Title:     rule.Name,
			Message:   message,
			Link:      "/requests/" + req.ID.Hex(),
		}
		if err := s.Notifications.Notify(ctx, n); err != nil {
			s.Logger.Warn("automation notification failed",
				zap.String("rule", rule.Name),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	s.Logger.Info("automation rule fired",
		zap.String("rule", rule.Name),
		zap.String("request_id", req.ID.Hex()),
		zap.String("action", string(event.Action)),
	)
}

// requestSnapshot exposes the request to condition scripts as plain values.
// Scripts see a stable shape regardless of how the model evolves.
func requestSnapshot(req *request.ApprovalRequest) map[string]interface{} {
	snap := map[string]interface{}{
		"id":            req.ID.Hex(),
		"status":        string(req.Status),
		"subject_type":  req.Subject.Type,
		"subject_id":    req.Subject.ID,
		"subject_title": req.Subject.Title,
		"created_by":    req.CreatedBy.ID,
	}
	if req.DueDate != nil {
		snap["due_date"] = req.DueDate.Format(time.RFC3339)
		snap["overdue"] = request.IsOverdue(req, time.Now())
	}
	for k, v := range req.Metadata {
		snap["meta_"+k] = v
	}
	return snap
}

func eventSnapshot(event request.Event) map[string]interface{} {
	return map[string]interface{}{
		"action":     string(event.Action),
		"actor_id":   event.Actor.ID,
		"actor_name": event.Actor.Name,
		"comment":    event.Comment,
	}
}

func validateRule(rule *Rule) error {
	if rule.Name == "" {
		return apperrors.Validation("rule name is required")
	}
	if rule.Trigger == "" {
		return apperrors.Validation("rule trigger is required")
	}
	if len(rule.NotifyUserIDs) == 0 {
		return apperrors.Validation("rule must notify at least one user")
	}
	if rule.Condition != "" {
		// Declare the same variables evaluate injects so scripts that
		// reference them compile here too.
		script := tengo.NewScript([]byte(rule.Condition))
		script.Add("request", map[string]interface{}{})
		script.Add("event", map[string]interface{}{})
		if _, err := script.Compile(); err != nil {
			return apperrors.Validation("invalid condition script: %v", err)
		}
	}
	return nil
}
