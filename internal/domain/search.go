package domain

// SearchState enumerates the search session states.
type SearchState int

const (
	SearchEmpty SearchState = iota
	SearchStarting
	SearchIdle
	SearchLoadingNext
	SearchEnd
	SearchFailure
)

func (s SearchState) String() string {
	switch s {
	case SearchEmpty:
		return "empty"
	case SearchStarting:
		return "starting"
	case SearchIdle:
		return "idle"
	case SearchLoadingNext:
		return "loading_next"
	case SearchEnd:
		return "end"
	case SearchFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name on the wire.
func (s SearchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SearchStatus is a snapshot of a search session.
type SearchStatus struct {
	State   SearchState `json:"state"`
	Query   string      `json:"query"`
	Results []Locator   `json:"results"`
	Error   string      `json:"error,omitempty"`
}
