package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	TypeApprovalRequested NotificationType = "approval_requested"
	TypeDecisionOutcome   NotificationType = "decision_outcome"
	TypeReminder          NotificationType = "reminder"
	TypeAutomation        NotificationType = "automation"
)

// Notification is one in-app message for a user. Delivery is at-least-once;
// consumers dedupe on (user_id, request_id, type) if they need to.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	RequestID primitive.ObjectID `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Type      NotificationType   `bson:"type" json:"type"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Link      string             `bson:"link,omitempty" json:"link,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
