package editor

import "fmt"

// State is where the active document stands relative to its committed record.
type State int

const (
	Clean State = iota
	Dirty
	Saving
	SaveFailed
)

var stateNames = map[State]string{
	Clean:      "clean",
	Dirty:      "dirty",
	Saving:     "saving",
	SaveFailed: "save_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown editor state %q", b)
}
