package automation

import (
	"time"

	"go-approvals/internal/features/request"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rule fires on committed workflow events. Condition is a Tengo script
// evaluated against the request snapshot; an empty condition always matches.
// The script must assign a boolean to `match`, e.g.:
//
//	match := request.priority == "high" && event.action == "rejected"
type Rule struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name" json:"name"`
	Trigger       request.EventAction `bson:"trigger" json:"trigger"`
	Condition     string              `bson:"condition,omitempty" json:"condition,omitempty"`
	NotifyUserIDs []string            `bson:"notify_user_ids" json:"notify_user_ids"`
	Message       string              `bson:"message,omitempty" json:"message,omitempty"`
	Active        bool                `bson:"active" json:"active"`
	CreatedBy     string              `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}
