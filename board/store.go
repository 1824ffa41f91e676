// Package board owns the in-memory task board and mirrors it to a persistence
// backend after every change.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrNoSnapshot is returned by a Persister that has nothing stored yet.
var ErrNoSnapshot = errors.New("no persisted board snapshot")

// Persister loads and saves board snapshots. Saved states are shared with
// the store and must not be modified.
type Persister interface {
	Load(ctx context.Context) (domain.State, error)
	Save(ctx context.Context, s domain.State) error
}

// Store applies commands to the board one at a time.
type Store struct {
	mu    sync.Mutex
	state domain.State

	logger      *log.Logger
	now         func() time.Time
	newID       func() string
	saveTimeout time.Duration

	saver *saver
	subs  *broker
	once  sync.Once
}

type Option func(*Store)

// WithClock replaces the wall clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces uuid based task ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSaveTimeout bounds a single background save.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// Open loads the persisted board through p and starts the background writer.
// A missing or unreadable snapshot falls back to the example board.
func Open(ctx context.Context, p Persister, opts ...Option) *Store {
	s := &Store{
		logger:      log.StandardLogger(),
		now:         time.Now,
		newID:       uuid.NewString,
		saveTimeout: 10 * time.Second,
		subs:        newBroker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.saver = newSaver(p, s.logger, s.saveTimeout)

	loaded, err := p.Load(ctx)
	switch {
	case err == nil:
		s.state = loaded
	case errors.Is(err, ErrNoSnapshot):
		s.state = domain.DefaultState(s.stamp())
		s.saver.schedule(s.state)
	default:
		s.logger.WithError(err).Error("failed to load board state, using default board")
		s.state = domain.DefaultState(s.stamp())
	}
	go s.saver.run()
	return s
}

// stamp returns the current time in the precision snapshots preserve.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Dispatch applies cmd and returns the resulting board. Rejected commands
// leave the board unchanged and return the reducer error.
func (s *Store) Dispatch(cmd domain.Command) (domain.State, error) {
	s.mu.Lock()
	cur := s.state
	next, err := domain.Reduce(cur, cmd)
	if err != nil {
		s.mu.Unlock()
		s.logger.WithFields(log.Fields{"command": domain.CommandName(cmd), "error": err}).Debug("board command ignored")
		return cur.Clone(), err
	}
	s.state = next
	s.saver.schedule(next)
	s.mu.Unlock()

	s.subs.notify()
	return next.Clone(), nil
}

// DispatchAll applies cmds as one change. If any command is rejected none of
// them take effect.
func (s *Store) DispatchAll(cmds ...domain.Command) (domain.State, error) {
	s.mu.Lock()
	cur := s.state
	next := cur
	for _, cmd := range cmds {
		var err error
		if next, err = domain.Reduce(next, cmd); err != nil {
			s.mu.Unlock()
			s.logger.WithFields(log.Fields{"command": domain.CommandName(cmd), "error": err}).Debug("board command batch ignored")
			return cur.Clone(), err
		}
	}
	if len(cmds) == 0 {
		s.mu.Unlock()
		return cur.Clone(), nil
	}
	s.state = next
	s.saver.schedule(next)
	s.mu.Unlock()

	s.subs.notify()
	return next.Clone(), nil
}

// AddTask creates a task in the todo column.
func (s *Store) AddTask(in domain.NewTask) (domain.Task, error) {
	id := s.newID()
	next, err := s.Dispatch(domain.AddTask{ID: id, Task: in, At: s.stamp()})
	if err != nil {
		return domain.Task{}, err
	}
	return next.Tasks[id], nil
}

func (s *Store) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error) {
	next, err := s.Dispatch(domain.UpdateTask{ID: id, Patch: patch, At: s.stamp()})
	if err != nil {
		return domain.Task{}, err
	}
	return next.Tasks[id], nil
}

// DeleteTask removes a task and returns what was deleted.
func (s *Store) DeleteTask(id string) (domain.Task, error) {
	prev, ok := s.Task(id)
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if _, err := s.Dispatch(domain.DeleteTask{ID: id}); err != nil {
		return domain.Task{}, err
	}
	return prev, nil
}

// MoveTask moves a task to dest. The task leaves the column it is recorded
// in; a source that disagrees is logged.
func (s *Store) MoveTask(id string, source, dest domain.Status) (domain.Task, error) {
	if cur, ok := s.Task(id); ok && source != "" && cur.Status != source {
		s.logger.WithFields(log.Fields{"task": id, "source": source, "status": cur.Status}).Warn("move source does not match task status")
	}
	next, err := s.Dispatch(domain.MoveTask{ID: id, Source: source, Dest: dest, At: s.stamp()})
	if err != nil {
		return domain.Task{}, err
	}
	return next.Tasks[id], nil
}

func (s *Store) ReorderTasks(status domain.Status, taskIDs []string) error {
	_, err := s.Dispatch(domain.ReorderTasks{Status: status, TaskIDs: taskIDs})
	return err
}

func (s *Store) SetSearchQuery(q string) error {
	_, err := s.Dispatch(domain.SetSearchQuery{Query: q})
	return err
}

func (s *Store) SetFilterPriority(p string) error {
	_, err := s.Dispatch(domain.SetFilterPriority{Priority: p})
	return err
}

func (s *Store) SetFilterStatus(st string) error {
	_, err := s.Dispatch(domain.SetFilterStatus{Status: st})
	return err
}

// LoadState replaces the whole board.
func (s *Store) LoadState(st domain.State) error {
	_, err := s.Dispatch(domain.LoadState{State: st})
	return err
}

// State returns a copy of the current board.
func (s *Store) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Tasks[id]
	return t.Clone(), ok
}

// Visible returns the filtered tasks of the whole board.
func (s *Store) Visible() []domain.Task {
	return domain.Visible(s.State())
}

func (s *Store) Stats() domain.Stats {
	return domain.ComputeStats(s.State())
}

// Subscribe returns a channel signalled after every change and a function
// that cancels the subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := s.subs.subscribe()
	return ch, func() { s.subs.unsubscribe(ch) }
}

// Close writes the last pending snapshot and stops the background writer.
func (s *Store) Close() {
	s.once.Do(s.saver.close)
}
