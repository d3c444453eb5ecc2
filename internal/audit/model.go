package audit

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type Action string

const (
	ActionLogin              Action = "login"
	ActionLogout             Action = "logout"
	ActionCreate             Action = "create"
	ActionUpdate             Action = "update"
	ActionDelete             Action = "delete"
	ActionOrderPlaced        Action = "order_placed"
	ActionOrderStatusChanged Action = "order_status_changed"
	ActionStockUpdated       Action = "stock_updated"
	ActionUserCreated        Action = "user_created"
	ActionUserModified       Action = "user_modified"
	ActionPriceChanged       Action = "price_changed"
	ActionItemCancelled      Action = "item_cancelled"
	ActionOrderItemAdded     Action = "order_item_added"
	ActionReassign           Action = "reassign"
)

// Entry is one append-only audit record.
type Entry struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	UserID       *uuid.UUID     `json:"user" db:"user_id"`
	Username     string         `json:"user_username,omitempty" db:"username"`
	Action       Action         `json:"action" db:"action"`
	ResourceType string         `json:"resource_type" db:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty" db:"resource_id"`
	Details      map[string]any `json:"details" db:"-"`
	IPAddress    string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string         `json:"user_agent,omitempty" db:"user_agent"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
}

type NotificationType string

const (
	NotificationOrderNew     NotificationType = "order_new"
	NotificationOrderStatus  NotificationType = "order_status"
	NotificationStockLow     NotificationType = "stock_low"
	NotificationUserActivity NotificationType = "user_activity"
	NotificationSystemAlert  NotificationType = "system_alert"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Notification struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	RecipientID  uuid.UUID        `json:"recipient" db:"recipient_id"`
	Type         NotificationType `json:"notification_type" db:"notification_type"`
	Priority     Priority         `json:"priority" db:"priority"`
	Title        string           `json:"title" db:"title"`
	Message      string           `json:"message" db:"message"`
	Read         bool             `json:"read" db:"read"`
	ReadAt       *time.Time       `json:"read_at,omitempty" db:"read_at"`
	ResourceType string           `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string           `json:"resource_id,omitempty" db:"resource_id"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// Filter narrows an audit log listing. Zero values are ignored.
type Filter struct {
	Username     string
	Action       Action
	ResourceType string
	From         *time.Time
	To           *time.Time
	Limit        int
}

type requestMetaKey struct{}

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta stores the caller address and agent for entries recorded
// while serving the request.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

func requestMetaFrom(ctx context.Context) requestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}
