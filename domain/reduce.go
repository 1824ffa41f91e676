package domain

import "fmt"

// Reduce applies cmd to s and returns the resulting state. s is never
// modified. When cmd cannot be applied the returned state is s and the error
// says why.
func Reduce(s State, cmd Command) (State, error) {
	switch c := cmd.(type) {
	case AddTask:
		return addTask(s, c)
	case UpdateTask:
		return updateTask(s, c)
	case DeleteTask:
		return deleteTask(s, c)
	case MoveTask:
		return moveTask(s, c)
	case ReorderTasks:
		return reorderTasks(s, c)
	case SetSearchQuery:
		next := s.Clone()
		next.SearchQuery = c.Query
		return next, nil
	case SetFilterPriority:
		if c.Priority != FilterAll && !Priority(c.Priority).Valid() {
			return s, fmt.Errorf("%w: %q", ErrInvalidPriority, c.Priority)
		}
		next := s.Clone()
		next.FilterPriority = c.Priority
		return next, nil
	case SetFilterStatus:
		if c.Status != FilterAll && !Status(c.Status).Valid() {
			return s, fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
		}
		next := s.Clone()
		next.FilterStatus = c.Status
		return next, nil
	case LoadState:
		return c.State.Clone(), nil
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func addTask(s State, c AddTask) (State, error) {
	if c.ID == "" {
		return s, ErrMissingTaskID
	}
	if _, exists := s.Tasks[c.ID]; exists {
		return s, fmt.Errorf("%w: %s", ErrDuplicateTask, c.ID)
	}
	if !c.Task.Priority.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidPriority, c.Task.Priority)
	}
	t := Task{
		ID:          c.ID,
		Title:       c.Task.Title,
		Description: c.Task.Description,
		Status:      StatusTodo,
		Priority:    c.Task.Priority,
		CreatedAt:   c.At,
		UserID:      c.Task.UserID,
		UpdatedAt:   c.At,
	}
	if c.Task.DueDate != nil {
		due := *c.Task.DueDate
		t.DueDate = &due
	}
	next := s.Clone()
	next.Tasks[t.ID] = t
	col := next.Columns[StatusTodo]
	col.TaskIDs = withID(col.TaskIDs, t.ID)
	next.Columns[StatusTodo] = col
	return next, nil
}

func updateTask(s State, c UpdateTask) (State, error) {
	cur, ok := s.Tasks[c.ID]
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrTaskNotFound, c.ID)
	}
	if c.Patch.Priority != nil && !c.Patch.Priority.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidPriority, *c.Patch.Priority)
	}
	if c.Patch.Status != nil && !c.Patch.Status.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidStatus, *c.Patch.Status)
	}
	if c.Patch.Empty() {
		return s, nil
	}
	next := s.Clone()
	t := next.Tasks[c.ID]
	c.Patch.apply(&t)
	t.UpdatedAt = c.At
	if c.Patch.Status != nil && *c.Patch.Status != cur.Status {
		relocate(&next, c.ID, cur.Status, *c.Patch.Status)
		t.Status = *c.Patch.Status
	}
	next.Tasks[c.ID] = t
	return next, nil
}

func deleteTask(s State, c DeleteTask) (State, error) {
	cur, ok := s.Tasks[c.ID]
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrTaskNotFound, c.ID)
	}
	next := s.Clone()
	delete(next.Tasks, c.ID)
	col := next.Columns[cur.Status]
	col.TaskIDs = withoutID(col.TaskIDs, c.ID)
	next.Columns[cur.Status] = col
	return next, nil
}

func moveTask(s State, c MoveTask) (State, error) {
	cur, ok := s.Tasks[c.ID]
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrTaskNotFound, c.ID)
	}
	if !c.Dest.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidStatus, c.Dest)
	}
	if c.Source != "" && !c.Source.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidStatus, c.Source)
	}
	next := s.Clone()
	relocate(&next, c.ID, cur.Status, c.Dest)
	t := next.Tasks[c.ID]
	t.Status = c.Dest
	t.UpdatedAt = c.At
	next.Tasks[c.ID] = t
	return next, nil
}

// relocate removes id from the from column and appends it to the to column.
// Moving within one column sends the task to the bottom.
func relocate(s *State, id string, from, to Status) {
	src := s.Columns[from]
	src.TaskIDs = withoutID(src.TaskIDs, id)
	s.Columns[from] = src
	dst := s.Columns[to]
	dst.TaskIDs = withID(dst.TaskIDs, id)
	s.Columns[to] = dst
}

func reorderTasks(s State, c ReorderTasks) (State, error) {
	if !c.Status.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}
	if !isPermutation(s.Columns[c.Status].TaskIDs, c.TaskIDs) {
		return s, ErrInvalidOrder
	}
	next := s.Clone()
	col := next.Columns[c.Status]
	col.TaskIDs = append(make([]string, 0, len(c.TaskIDs)), c.TaskIDs...)
	next.Columns[c.Status] = col
	return next, nil
}
