package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type Service interface {
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)
	CreateEntry(ctx context.Context, e Entry) (*Entry, error)
	ListNotifications(ctx context.Context, recipientID uuid.UUID) ([]Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListEntries(ctx context.Context, f Filter) ([]Entry, error) {
	entries, err := s.repo.ListEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// CreateEntry stores a client-submitted entry. Unlike Sink.Record the write
// is the primary operation, so its error is returned.
func (s *service) CreateEntry(ctx context.Context, e Entry) (*Entry, error) {
	if strings.TrimSpace(string(e.Action)) == "" || strings.TrimSpace(e.ResourceType) == "" {
		return nil, ErrInvalidEntry
	}
	meta := requestMetaFrom(ctx)
	e.IPAddress = meta.ip
	e.UserAgent = meta.userAgent
	e.ID = uuid.Nil
	e.Timestamp = time.Time{}

	if err := s.repo.InsertEntry(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to create audit entry: %w", err)
	}
	return &e, nil
}

func (s *service) ListNotifications(ctx context.Context, recipientID uuid.UUID) ([]Notification, error) {
	notifications, err := s.repo.ListNotifications(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, recipientID)
}

// EndOfDay returns the last instant of the calendar day containing t.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Microsecond)
}
