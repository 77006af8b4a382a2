package logbus

import "strings"

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects messages by type and minimum log level. The zero value matches
// everything.
type Filter struct {
	Types    map[string]bool
	MinLevel string
}

// ParseFilter reads a comma separated type list and a level name. Unknown levels fall
// back to info.
func ParseFilter(types, level string) Filter {
	f := Filter{MinLevel: "info"}
	if types = strings.TrimSpace(types); types != "" {
		f.Types = make(map[string]bool)
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types[t] = true
			}
		}
	}
	if level = strings.ToLower(strings.TrimSpace(level)); level != "" {
		if _, ok := levelRank[level]; ok {
			f.MinLevel = level
		}
	}
	return f
}

func (f Filter) Match(msg Message) bool {
	if f.Types != nil && !f.Types[msg.Type] {
		return false
	}
	data, ok := msg.Data.(LogData)
	if !ok {
		return true
	}
	floor, ok := levelRank[f.MinLevel]
	if !ok {
		return true
	}
	rank, known := levelRank[data.Level]
	return !known || rank >= floor
}
