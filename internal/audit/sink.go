package audit

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Recorder is the write-only side used by business services. Implementations
// never fail the caller; errors are logged and dropped.
type Recorder interface {
	Record(ctx context.Context, e Entry)
	Notify(ctx context.Context, n Notification)
	NotifyStaff(ctx context.Context, n Notification)
}

// Publisher forwards a stored notification to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// StaffLookup returns the ids of every active staff and admin account.
type StaffLookup func(ctx context.Context) ([]uuid.UUID, error)

type Sink struct {
	repo      Repository
	publisher Publisher
	staff     StaffLookup
}

func NewSink(repo Repository, publisher Publisher, staff StaffLookup) *Sink {
	return &Sink{repo: repo, publisher: publisher, staff: staff}
}

func (s *Sink) Record(ctx context.Context, e Entry) {
	meta := requestMetaFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.ip
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.userAgent
	}

	if err := s.repo.InsertEntry(ctx, &e); err != nil {
		log.Error().Err(err).
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Str("resource_id", e.ResourceID).
			Msg("audit: failed to record entry")
	}
}

func (s *Sink) Notify(ctx context.Context, n Notification) {
	if err := s.repo.InsertNotification(ctx, &n); err != nil {
		log.Error().Err(err).
			Stringer("recipient_id", n.RecipientID).
			Str("type", string(n.Type)).
			Msg("audit: failed to store notification")
		return
	}
	s.publish(ctx, n)
}

func (s *Sink) NotifyStaff(ctx context.Context, n Notification) {
	if s.staff == nil {
		return
	}
	ids, err := s.staff(ctx)
	if err != nil {
		log.Error().Err(err).Str("type", string(n.Type)).Msg("audit: failed to look up staff recipients")
		return
	}
	for _, id := range ids {
		copyN := n
		copyN.ID = uuid.Nil
		copyN.RecipientID = id
		s.Notify(ctx, copyN)
	}
}

func (s *Sink) publish(ctx context.Context, n Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		log.Warn().Err(err).Stringer("notification_id", n.ID).Msg("audit: failed to publish notification")
	}
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Record(context.Context, Entry) {}
func (Discard) Notify(context.Context, Notification) {}
func (Discard) NotifyStaff(context.Context, Notification) {}

// Buffer collects side effects produced inside a transaction so they can be
// flushed once it commits. A rolled back transaction simply drops its buffer.
type Buffer struct {
	entries []Entry
	direct  []Notification
	staff   []Notification
}

func (b *Buffer) Record(e Entry) {
	b.entries = append(b.entries, e)
}

func (b *Buffer) Notify(n Notification) {
	b.direct = append(b.direct, n)
}

func (b *Buffer) NotifyStaff(n Notification) {
	b.staff = append(b.staff, n)
}

func (b *Buffer) Entries() []Entry {
	return b.entries
}

// Flush hands everything to r and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, r Recorder) {
	for _, e := range b.entries {
		r.Record(ctx, e)
	}
	for _, n := range b.direct {
		r.Notify(ctx, n)
	}
	for _, n := range b.staff {
		r.NotifyStaff(ctx, n)
	}
	b.entries, b.direct, b.staff = nil, nil, nil
}

// ResourceID formats an identifier for the resource_id column.
func ResourceID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
