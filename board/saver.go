package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// saver writes board snapshots from a single goroutine. Snapshots scheduled
// while a write is in flight collapse into the latest one.
type saver struct {
	persister Persister
	logger    *log.Logger
	timeout   time.Duration

	mu      sync.Mutex
	pending *domain.State
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newSaver(p Persister, logger *log.Logger, timeout time.Duration) *saver {
	return &saver{
		persister: p,
		logger:    logger,
		timeout:   timeout,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *saver) schedule(s domain.State) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("board store closed, snapshot not persisted")
		return
	}
	w.pending = &s
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *saver) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *saver) flush() {
	w.mu.Lock()
	s := w.pending
	w.pending = nil
	w.mu.Unlock()
	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	start := time.Now()
	if err := w.persister.Save(ctx, *s); err != nil {
		w.logger.WithError(err).Error("failed to persist board state")
		return
	}
	w.logger.WithFields(log.Fields{"tasks": len(s.Tasks), "save_ms": durationToMillis(time.Since(start))}).Debug("board state persisted")
}

func (w *saver) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	close(w.stop)
	<-w.done
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
