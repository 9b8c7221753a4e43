package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserCreated       = "user.created"
	EventTypeUserRoleChanged   = "user.role_changed"
	EventTypeUserDeactivated   = "user.deactivated"
	EventTypeUserReactivated   = "user.reactivated"
	EventTypePermissionChanged = "permission.changed"
	EventTypeAccessAudit       = "access.audit"
)

type UserEvent struct {
	BaseEvent
	UserID  int64  `json:"user_id"`
	ActorID int64  `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

func NewUserEvent(eventType string, userID, actorID int64, role string) *UserEvent {
	return &UserEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":  userID,
				"actor_id": actorID,
				"role":     role,
			},
		},
		UserID:  userID,
		ActorID: actorID,
		Role:    role,
	}
}

// PermissionChangedEvent is published after a grant, revoke or override write
// has committed. Version is the permission version the write produced.
type PermissionChangedEvent struct {
	BaseEvent
	Subject string `json:"subject"`
	Module  string `json:"module"`
	Action  string `json:"action"`
	Change  string `json:"change"`
	ActorID int64  `json:"actor_id"`
	Version int64  `json:"version"`
}

func NewPermissionChangedEvent(subject, module, action, change string, actorID, version int64) *PermissionChangedEvent {
	return &PermissionChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePermissionChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subject":  subject,
				"module":   module,
				"action":   action,
				"change":   change,
				"actor_id": actorID,
				"version":  version,
			},
		},
		Subject: subject,
		Module:  module,
		Action:  action,
		Change:  change,
		ActorID: actorID,
		Version: version,
	}
}
