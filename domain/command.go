package domain

import "time"

// Command is a request to transition the board state.
type Command interface {
	commandName() string
}

// AddTask creates a task in the todo column. ID is generated by the caller.
type AddTask struct {
	ID   string
	Task NewTask
	At   time.Time
}

// UpdateTask merges Patch into an existing task.
type UpdateTask struct {
	ID    string
	Patch TaskPatch
	At    time.Time
}

type DeleteTask struct {
	ID string
}

// MoveTask moves a task between columns. Source is informational: the task's
// recorded status decides which column it leaves.
type MoveTask struct {
	ID     string
	Source Status
	Dest   Status
	At     time.Time
}

// ReorderTasks replaces the order of a column. TaskIDs must be a permutation
// of the ids currently in the column.
type ReorderTasks struct {
	Status  Status
	TaskIDs []string
}

type SetSearchQuery struct {
	Query string
}

type SetFilterPriority struct {
	Priority string
}

type SetFilterStatus struct {
	Status string
}

// LoadState replaces the whole board.
type LoadState struct {
	State State
}

func (AddTask) commandName() string           { return "add-task" }
func (UpdateTask) commandName() string        { return "update-task" }
func (DeleteTask) commandName() string        { return "delete-task" }
func (MoveTask) commandName() string          { return "move-task" }
func (ReorderTasks) commandName() string      { return "reorder-tasks" }
func (SetSearchQuery) commandName() string    { return "set-search-query" }
func (SetFilterPriority) commandName() string { return "set-filter-priority" }
func (SetFilterStatus) commandName() string   { return "set-filter-status" }
func (LoadState) commandName() string         { return "load-state" }

// CommandName returns a stable name for cmd, suitable for logging.
func CommandName(cmd Command) string {
	if cmd == nil {
		return ""
	}
	return cmd.commandName()
}
