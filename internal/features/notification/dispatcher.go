package notification

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/features/request"

	"go.uber.org/zap"
)

const (
	dispatchAttempts = 3
	dispatchTimeout  = 10 * time.Second
)

// Dispatcher turns committed approval events into in-app notifications. It
// runs strictly after the decision transaction: nothing it does can roll a
// decision back, and every failure ends up in the log rather than with the
// caller. Delivery is at-least-once.
type Dispatcher struct {
	Requests request.Repository
	Service  Service
	Logger   *zap.Logger
}

func NewDispatcher(requests request.Repository, service Service, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Requests: requests,
		Service:  service,
		Logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(requestID string, eventType request.EventAction) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	req, err := d.Requests.Get(ctx, requestID)
	if err != nil {
		d.Logger.Error("notification dispatch: failed to load request",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}
	approvers, err := d.Requests.ListApprovers(ctx, req.ID)
	if err != nil {
		d.Logger.Error("notification dispatch: failed to load approvers",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}

	for _, n := range d.build(req, approvers, eventType) {
		d.deliver(ctx, n)
	}
}

// Remind notifies every approver who has not decided yet that the request is
// past its due date. Used by the overdue scan; stores nothing on the request.
func (d *Dispatcher) Remind(ctx context.Context, req *request.ApprovalRequest) {
	approvers, err := d.Requests.ListApprovers(ctx, req.ID)
	if err != nil {
		d.Logger.Error("reminder dispatch: failed to load approvers",
			zap.String("request_id", req.ID.Hex()), zap.Error(err))
		return
	}

	for i := range approvers {
		if approvers[i].Decided() {
			continue
		}
		d.deliver(ctx, &Notification{
			UserID:    approvers[i].UserID,
			RequestID: req.ID,
			Type:      TypeReminder,
			Title:     "Approval overdue",
			Message:   fmt.Sprintf("%q is past its due date and still awaiting your decision", req.Subject.Title),
			Link:      "/requests/" + req.ID.Hex(),
		})
	}
}

func (d *Dispatcher) build(req *request.ApprovalRequest, approvers []request.Approver, eventType request.EventAction) []*Notification {
	link := "/requests/" + req.ID.Hex()
	var out []*Notification

	switch eventType {
	case request.EventCreated:
		for i := range approvers {
			out = append(out, &Notification{
				UserID:    approvers[i].UserID,
				RequestID: req.ID,
				Type:      TypeApprovalRequested,
				Title:     "Approval requested",
				Message:   fmt.Sprintf("Your decision is requested on %q", req.Subject.Title),
				Link:      link,
			})
		}
	case request.EventStatusChanged:
		message := fmt.Sprintf("%q is now %s", req.Subject.Title, req.Status)
		out = append(out, &Notification{
			UserID:    req.CreatedBy.ID,
			RequestID: req.ID,
			Type:      TypeDecisionOutcome,
			Title:     "Approval outcome",
			Message:   message,
			Link:      link,
		})
		for i := range approvers {
			if approvers[i].UserID == req.CreatedBy.ID {
				continue
			}
			out = append(out, &Notification{
				UserID:    approvers[i].UserID,
				RequestID: req.ID,
				Type:      TypeDecisionOutcome,
				Title:     "Approval outcome",
				Message:   message,
				Link:      link,
			})
		}
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	var err error
	for attempt := 0; attempt < dispatchAttempts; attempt++ {
		if err = d.Service.Notify(ctx, n); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	d.Logger.Error("notification delivery failed",
		zap.String("user_id", n.UserID),
		zap.String("request_id", n.RequestID.Hex()),
		zap.String("type", string(n.Type)),
		zap.Error(err))
}
