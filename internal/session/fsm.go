package session

import "fmt"

// State is a live session lifecycle phase. The machine is strictly
// forward-moving: no state is revisited within a session.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// next maps each state to its only legal successor.
var next = map[State]State{
	StateIdle:       StateRecording,
	StateRecording:  StateStopping,
	StateStopping:   StateFinalizing,
	StateFinalizing: StateDone,
}

// Advance returns the successor of current, or an error for a terminal or
// unknown state.
func Advance(current State) (State, error) {
	n, ok := next[current]
	if !ok {
		return current, fmt.Errorf("no transition from state %q", current)
	}
	return n, nil
}
