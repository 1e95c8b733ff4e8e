package booking

// State is a step of the booking flow.
type State string

const (
	StateSearching    State = "SEARCHING"
	StateRoomsListed  State = "ROOMS_LISTED"
	StateRoomSelected State = "ROOM_SELECTED"
	StateGuestInfo    State = "GUEST_INFO"
	StateConfirming   State = "CONFIRMING"
	StateConfirmed    State = "CONFIRMED"
)

var stateRank = map[State]int{
	StateSearching:    0,
	StateRoomsListed:  1,
	StateRoomSelected: 2,
	StateGuestInfo:    3,
	StateConfirming:   4,
	StateConfirmed:    5,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok
}

// IsTerminal is true only for CONFIRMED.
func (s State) IsTerminal() bool { return s == StateConfirmed }

// Before reports whether s comes earlier in the flow than other.
func (s State) Before(other State) bool { return stateRank[s] < stateRank[other] }
