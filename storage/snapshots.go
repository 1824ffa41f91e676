package storage

import (
	"context"
	"fmt"

	"taskboard/board"
	"taskboard/domain"
)

// Snapshots persists the board as a JSON snapshot under StateKey.
type Snapshots struct {
	kv KV
}

var _ board.Persister = (*Snapshots)(nil)

func NewSnapshots(kv KV) *Snapshots {
	return &Snapshots{kv: kv}
}

// Load returns board.ErrNoSnapshot when nothing has been saved yet. A
// snapshot that cannot be decoded is copied to RejectedStateKey before the
// error is returned, since the next save overwrites StateKey.
func (s *Snapshots) Load(ctx context.Context) (domain.State, error) {
	raw, ok, err := s.kv.GetItem(ctx, StateKey)
	if err != nil {
		return domain.State{}, err
	}
	if !ok {
		return domain.State{}, board.ErrNoSnapshot
	}
	st, err := domain.DecodeSnapshot([]byte(raw))
	if err != nil {
		if berr := s.kv.SetItem(ctx, RejectedStateKey, raw); berr != nil {
			return domain.State{}, fmt.Errorf("%w (keeping rejected copy failed: %v)", err, berr)
		}
		return domain.State{}, fmt.Errorf("%w (kept as %s)", err, RejectedStateKey)
	}
	return st, nil
}

func (s *Snapshots) Save(ctx context.Context, st domain.State) error {
	data, err := domain.EncodeSnapshot(st)
	if err != nil {
		return err
	}
	return s.kv.SetItem(ctx, StateKey, string(data))
}
