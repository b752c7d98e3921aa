package audit

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry is one compliance record: who did what, when, from where. The audit
// log is parallel to the user-facing event stream, append-only, and kept
// under its own retention policy. It is never surfaced in normal UI flows.
type Entry struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	RequestID primitive.ObjectID     `bson:"request_id" json:"request_id"`
	ActorID   string                 `bson:"actor_id" json:"actor_id"`
	ActorName string                 `bson:"actor_name,omitempty" json:"actor_name,omitempty"`
	Action    string                 `bson:"action" json:"action"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	IPAddress string                 `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	// Archived marks entries already mirrored into the relational archive.
	Archived bool `bson:"archived" json:"-"`
}
