package domain

import (
	"fmt"
	"slices"
)

// Column is an ordered bucket of task ids for one status.
type Column struct {
	ID      Status   `json:"id"`
	Title   string   `json:"title"`
	TaskIDs []string `json:"taskIds"`
}

// State is the complete board for one session.
type State struct {
	Tasks          map[string]Task   `json:"tasks"`
	Columns        map[Status]Column `json:"columns"`
	SearchQuery    string            `json:"searchQuery"`
	FilterPriority string            `json:"filterPriority"`
	FilterStatus   string            `json:"filterStatus"`
}

// EmptyState returns a board with the three fixed columns and no tasks.
func EmptyState() State {
	cols := make(map[Status]Column, len(Statuses))
	for _, s := range Statuses {
		cols[s] = Column{ID: s, Title: s.Title(), TaskIDs: []string{}}
	}
	return State{
		Tasks:          map[string]Task{},
		Columns:        cols,
		FilterPriority: FilterAll,
		FilterStatus:   FilterAll,
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Tasks = make(map[string]Task, len(s.Tasks))
	for id, t := range s.Tasks {
		out.Tasks[id] = t.Clone()
	}
	out.Columns = make(map[Status]Column, len(s.Columns))
	for id, c := range s.Columns {
		c.TaskIDs = append(make([]string, 0, len(c.TaskIDs)), c.TaskIDs...)
		out.Columns[id] = c
	}
	return out
}

// Validate checks the board invariants: every task is listed by exactly the
// column matching its status, columns only list known tasks without
// duplicates, and the column set is fixed.
func Validate(s State) error {
	if len(s.Columns) != len(Statuses) {
		return fmt.Errorf("board has %d columns, want %d", len(s.Columns), len(Statuses))
	}
	seen := make(map[string]Status, len(s.Tasks))
	for _, status := range Statuses {
		col, ok := s.Columns[status]
		if !ok {
			return fmt.Errorf("column %q missing", status)
		}
		if col.ID != status {
			return fmt.Errorf("column %q has id %q", status, col.ID)
		}
		for _, id := range col.TaskIDs {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("task %q listed by %q and %q", id, prev, status)
			}
			seen[id] = status
			t, ok := s.Tasks[id]
			if !ok {
				return fmt.Errorf("column %q lists unknown task %q", status, id)
			}
			if t.Status != status {
				return fmt.Errorf("task %q has status %q but is listed by %q", id, t.Status, status)
			}
		}
	}
	for id, t := range s.Tasks {
		if t.ID != id {
			return fmt.Errorf("task keyed %q has id %q", id, t.ID)
		}
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("task %q is not listed by any column", id)
		}
	}
	return nil
}

func withoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func withID(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}

// isPermutation reports whether next holds exactly the ids of current, each once.
func isPermutation(current, next []string) bool {
	if len(current) != len(next) {
		return false
	}
	a := slices.Clone(current)
	b := slices.Clone(next)
	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		return false
	}
	return len(slices.Compact(b)) == len(next)
}
