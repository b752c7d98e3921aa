package automation

import (
	"context"
	"testing"

	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/features/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func testRequest() *request.ApprovalRequest {
	return &request.ApprovalRequest{
		ID:        primitive.NewObjectID(),
		Status:    request.StatusPending,
		Subject:   request.Subject{Type: "document", ID: "doc-9", Title: "Vendor contract"},
		CreatedBy: request.Actor{ID: "creator"},
		Metadata:  map[string]string{"priority": "high"},
	}
}

func testEvent(action request.EventAction) request.Event {
	return request.Event{
		RequestID: primitive.NewObjectID(),
		Action:    action,
		Actor:     request.Actor{ID: "u1", Name: "Ana"},
	}
}

func TestEvaluateCondition(t *testing.T) {
	svc := &ServiceImpl{Logger: zap.NewNop()}

	tests := []struct {
		name      string
		condition string
		want      bool
		wantErr   bool
	}{
		{
			name:      "empty condition always matches",
			condition: "",
			want:      true,
		},
		{
			name:      "status match",
			condition: `match := request.status == "pending"`,
			want:      true,
		},
		{
			name:      "status mismatch",
			condition: `match := request.status == "approved"`,
			want:      false,
		},
		{
			name:      "metadata access",
			condition: `match := request.meta_priority == "high"`,
			want:      true,
		},
		{
			name:      "event fields",
			condition: `match := event.action == "rejected" && event.actor_id == "u1"`,
			want:      true,
		},
		{
			name:      "compound expression",
			condition: `match := request.subject_type == "document" && event.action != "created"`,
			want:      true,
		},
		{
			name:      "script must set match",
			condition: `x := 1`,
			wantErr:   true,
		},
		{
			name:      "broken script",
			condition: `match :=`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.evaluate(context.Background(), Rule{Condition: tt.condition}, testRequest(), testEvent(request.EventRejected))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRule(t *testing.T) {
	valid := Rule{
		Name:          "notify compliance on rejection",
		Trigger:       request.EventRejected,
		Condition:     `match := request.meta_priority == "high"`,
		NotifyUserIDs: []string{"compliance-1"},
	}
	require.NoError(t, validateRule(&valid))

	compound := valid
	compound.Condition = `match := request.status == "pending" && event.action == "rejected"`
	require.NoError(t, validateRule(&compound))

	tests := []struct {
		name   string
		mutate func(r *Rule)
	}{
		{"missing name", func(r *Rule) { r.Name = "" }},
		{"missing trigger", func(r *Rule) { r.Trigger = "" }},
		{"nobody to notify", func(r *Rule) { r.NotifyUserIDs = nil }},
		{"condition does not compile", func(r *Rule) { r.Condition = `match :=` }},
		{"condition references unknown variable", func(r *Rule) { r.Condition = `match := approver.id == "x"` }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := validateRule(&r)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
		})
	}
}
