// Package activity records the activity feed shown next to the board. The
// feed is shared by everyone using the store; entries carry the acting user
// but are not filtered by it.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/storage"
)

// AnonymousUser is recorded for entries written without a signed-in actor.
const AnonymousUser = "anonymous"

// Sink receives a copy of every recorded entry.
type Sink interface {
	Export(ctx context.Context, entry domain.ActivityLog) error
}

// Log keeps activity entries newest first and persists them as one JSON
// array.
type Log struct {
	mu      sync.Mutex
	entries []domain.ActivityLog

	kv     storage.KV
	sink   Sink
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Log)

func WithSink(s Sink) Option {
	return func(l *Log) { l.sink = s }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(l *Log) { l.newID = gen }
}

// Open loads the persisted feed. Malformed data is logged and an empty feed
// is used instead.
func Open(ctx context.Context, kv storage.KV, opts ...Option) *Log {
	l := &Log{
		kv:     kv,
		logger: log.StandardLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	var entries []domain.ActivityLog
	if _, err := storage.GetJSON(ctx, kv, storage.ActivityLogsKey, &entries); err != nil {
		l.logger.WithError(err).Error("failed to load activity logs")
		entries = nil
	}
	l.entries = entries
	return l
}

func allowsAnonymous(t domain.ActivityType) bool {
	return t == domain.ActivityUserSignup || t == domain.ActivityUserLogin
}

// Add records an entry for actor. Without an actor only sign-up and login
// entries are kept; the returned bool reports whether anything was recorded.
func (l *Log) Add(ctx context.Context, actor string, typ domain.ActivityType, description, taskID string, metadata map[string]any) (domain.ActivityLog, bool) {
	if actor == "" {
		if !allowsAnonymous(typ) {
			return domain.ActivityLog{}, false
		}
		actor = AnonymousUser
	}
	entry := domain.ActivityLog{
		ID:          l.newID(),
		UserID:      actor,
		Type:        typ,
		Description: description,
		TaskID:      taskID,
		Timestamp:   l.now().UTC().Truncate(time.Millisecond),
		Metadata:    metadata,
	}

	l.mu.Lock()
	l.entries = append([]domain.ActivityLog{entry}, l.entries...)
	if err := storage.SetJSON(ctx, l.kv, storage.ActivityLogsKey, l.entries); err != nil {
		l.logger.WithError(err).Error("failed to persist activity logs")
	}
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Export(ctx, entry); err != nil {
			l.logger.WithError(err).WithField("activity", entry.ID).Warn("failed to export activity")
		}
	}
	return entry, true
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (l *Log) List(limit int) []domain.ActivityLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ActivityLog, n)
	copy(out, l.entries[:n])
	return out
}

// Clear drops every entry along with the persisted copy.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return l.kv.RemoveItem(ctx, storage.ActivityLogsKey)
}
