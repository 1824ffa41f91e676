package domain

import "time"

// DefaultState returns the example board used when nothing has been
// persisted yet: one task in each column.
func DefaultState(now time.Time) State {
	s := EmptyState()
	seed := []Task{
		{ID: "task-1", Title: "Setup project", Description: "Initialize the project structure", Status: StatusTodo, Priority: PriorityHigh},
		{ID: "task-2", Title: "Create components", Description: "Build components for the board", Status: StatusInProgress, Priority: PriorityHigh},
		{ID: "task-3", Title: "Add styling", Description: "Style the board components", Status: StatusDone, Priority: PriorityMedium},
	}
	for _, t := range seed {
		t.CreatedAt = now
		t.UpdatedAt = now
		s.Tasks[t.ID] = t
		col := s.Columns[t.Status]
		col.TaskIDs = append(col.TaskIDs, t.ID)
		s.Columns[t.Status] = col
	}
	return s
}
