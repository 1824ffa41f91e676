package domain

import (
	"math"
	"strings"
)

// VisibleColumn returns the tasks of one column, in column order, that pass
// the board's priority, status and search filters.
func VisibleColumn(s State, status Status) []Task {
	col, ok := s.Columns[status]
	if !ok {
		return []Task{}
	}
	query := strings.ToLower(s.SearchQuery)
	out := make([]Task, 0, len(col.TaskIDs))
	for _, id := range col.TaskIDs {
		t, ok := s.Tasks[id]
		if !ok {
			continue
		}
		if matches(s, t, query) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Visible returns the filtered tasks of the whole board, column by column in
// display order.
func Visible(s State) []Task {
	out := []Task{}
	for _, status := range Statuses {
		out = append(out, VisibleColumn(s, status)...)
	}
	return out
}

func matches(s State, t Task, lowerQuery string) bool {
	if s.FilterPriority != "" && s.FilterPriority != FilterAll && string(t.Priority) != s.FilterPriority {
		return false
	}
	if s.FilterStatus != "" && s.FilterStatus != FilterAll && string(t.Status) != s.FilterStatus {
		return false
	}
	if lowerQuery == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(t.Description), lowerQuery)
}

// Stats summarises the board for the dashboard.
type Stats struct {
	Total                int `json:"total"`
	Todo                 int `json:"todo"`
	InProgress           int `json:"inProgress"`
	Done                 int `json:"done"`
	CompletionPercentage int `json:"completionPercentage"`
}

// ComputeStats counts tasks per status. Filters do not apply.
func ComputeStats(s State) Stats {
	var st Stats
	for _, t := range s.Tasks {
		st.Total++
		switch t.Status {
		case StatusTodo:
			st.Todo++
		case StatusInProgress:
			st.InProgress++
		case StatusDone:
			st.Done++
		}
	}
	if st.Total > 0 {
		st.CompletionPercentage = int(math.Round(float64(st.Done) / float64(st.Total) * 100))
	}
	return st
}
