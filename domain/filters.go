package domain

// Filters is the transient filter and search part of the board.
type Filters struct {
	SearchQuery    *string `json:"searchQuery,omitempty"`
	FilterPriority *string `json:"filterPriority,omitempty"`
	FilterStatus   *string `json:"filterStatus,omitempty"`
}

// Commands translates f into the filter commands it implies.
func (f Filters) Commands() []Command {
	cmds := make([]Command, 0, 3)
	if f.SearchQuery != nil {
		cmds = append(cmds, SetSearchQuery{Query: *f.SearchQuery})
	}
	if f.FilterPriority != nil {
		cmds = append(cmds, SetFilterPriority{Priority: *f.FilterPriority})
	}
	if f.FilterStatus != nil {
		cmds = append(cmds, SetFilterStatus{Status: *f.FilterStatus})
	}
	return cmds
}
