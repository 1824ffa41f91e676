package domain

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrInvalidSnapshot is returned when persisted board data cannot be used.
var ErrInvalidSnapshot = errors.New("invalid board snapshot")

// EncodeSnapshot serialises s in the persisted board layout. Dates are
// written as ISO-8601 strings.
func EncodeSnapshot(s State) ([]byte, error) {
	return sonic.ConfigStd.Marshal(s)
}

// DecodeSnapshot parses a persisted board. Malformed JSON and boards that
// break the column invariants are rejected with ErrInvalidSnapshot.
func DecodeSnapshot(data []byte) (State, error) {
	var s State
	if err := sonic.ConfigStd.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	normalize(&s)
	if err := Validate(s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return s, nil
}

// normalize fills in fields older snapshots did not carry.
func normalize(s *State) {
	if s.Tasks == nil {
		s.Tasks = map[string]Task{}
	}
	if s.Columns == nil {
		s.Columns = map[Status]Column{}
	}
	for id, c := range s.Columns {
		if c.TaskIDs == nil {
			c.TaskIDs = []string{}
		}
		if c.Title == "" {
			c.Title = id.Title()
		}
		s.Columns[id] = c
	}
	for id, t := range s.Tasks {
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		s.Tasks[id] = t
	}
	if s.FilterPriority == "" {
		s.FilterPriority = FilterAll
	}
	if s.FilterStatus == "" {
		s.FilterStatus = FilterAll
	}
}
