package request

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the aggregate state of an approval request. It is derived from
// the approver decisions by Aggregate and never set directly by callers.
type Status string

const (
	StatusPending          Status = "pending"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusChangesRequested Status = "changes_requested"
)

// Terminal reports whether no further decisions are accepted once this
// status is reached.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is a single approver's verdict. The zero value means the approver
// has not decided yet.
type Decision string

const (
	DecisionNone             Decision = ""
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionChangesRequested Decision = "changes_requested"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionChangesRequested:
		return true
	}
	return false
}

// EventAction is the closed set of things that can happen to a request.
type EventAction string

const (
	EventCreated           EventAction = "created"
	EventApproved          EventAction = "approved"
	EventRejected          EventAction = "rejected"
	EventRequestedChanges  EventAction = "requested_changes"
	EventCommentAdded      EventAction = "comment_added"
	EventDueDateUpdated    EventAction = "due_date_updated"
	EventStatusChanged     EventAction = "status_changed"
)

// DecisionEvent maps an approver decision to its event action.
func DecisionEvent(d Decision) EventAction {
	switch d {
	case DecisionApproved:
		return EventApproved
	case DecisionRejected:
		return EventRejected
	default:
		return EventRequestedChanges
	}
}

// Subject identifies the external artifact the request is about.
type Subject struct {
	Type    string `bson:"type" json:"type"`
	ID      string `bson:"id" json:"id"`
	Title   string `bson:"title" json:"title"`
	Version string `bson:"version,omitempty" json:"version,omitempty"`
}

// Actor is the identity stamped on events and audit entries.
type Actor struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
}

// ESignature is the captured proof-of-intent attached to a decision.
// Once Signed is true the decision and the signature are immutable.
type ESignature struct {
	Signed    bool       `bson:"signed" json:"signed"`
	SignedAt  *time.Time `bson:"signed_at,omitempty" json:"signed_at,omitempty"`
	IPAddress string     `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent string     `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// ApprovalRequest is the aggregate root: one subject routed through a panel
// of approvers. Mutated only through the service; never deleted.
type ApprovalRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subject     Subject            `bson:"subject" json:"subject"`
	Status      Status             `bson:"status" json:"status"`
	CreatedBy   Actor              `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	DueDate     *time.Time         `bson:"due_date,omitempty" json:"due_date,omitempty"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Metadata    map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`

	// Version backs the optimistic concurrency check: every decision
	// transaction bumps it through a version-filtered write, so two
	// transactions computing status from mutually stale snapshots cannot
	// both commit.
	Version int64 `bson:"version" json:"-"`
	// EventSeq is the per-request monotonic counter breaking timestamp
	// ties in the event stream.
	EventSeq int64 `bson:"event_seq" json:"-"`
}

// Approver is one panel member on a request, holding at most one decision.
type Approver struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID  primitive.ObjectID `bson:"request_id" json:"request_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Name       string             `bson:"name,omitempty" json:"name,omitempty"`
	Role       string             `bson:"role,omitempty" json:"role,omitempty"`
	IsRequired bool               `bson:"is_required" json:"is_required"`
	Decision   Decision           `bson:"decision,omitempty" json:"decision,omitempty"`
	DecidedAt  *time.Time         `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	Comment    string             `bson:"comment,omitempty" json:"comment,omitempty"`
	Signature  ESignature         `bson:"signature" json:"signature"`
}

// Decided reports whether this approver holds an immutable decision.
func (a *Approver) Decided() bool {
	return a.Signature.Signed
}

// Event is one immutable entry in a request's history. Ordering is
// (timestamp, seq); entries are never mutated or deleted.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID primitive.ObjectID `bson:"request_id" json:"request_id"`
	Seq       int64              `bson:"seq" json:"seq"`
	Actor     Actor              `bson:"actor" json:"actor"`
	Action    EventAction        `bson:"action" json:"action"`
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Comment is discussion attached to a request. It is mirrored into the event
// stream so the history stays complete from one source; Internal only affects
// projection to external parties.
type Comment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID primitive.ObjectID `bson:"request_id" json:"request_id"`
	Author    Actor              `bson:"author" json:"author"`
	Text      string             `bson:"text" json:"text"`
	Internal  bool               `bson:"internal" json:"internal"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
