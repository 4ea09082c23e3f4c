package convert

// State is a stage of a conversion run
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateSinksOpen
	StateStreaming
	StateDraining
	StateAborted
	StateClosed
)

var stateNames = [...]string{"idle", "negotiating", "sinks_open", "streaming", "draining", "aborted", "closed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// allowed lists the legal transitions out of each state.
var allowed = map[State][]State{
	StateIdle:        {StateNegotiating, StateAborted},
	StateNegotiating: {StateSinksOpen, StateAborted},
	StateSinksOpen:   {StateStreaming, StateAborted},
	StateStreaming:   {StateDraining, StateAborted},
	StateDraining:    {StateClosed, StateAborted},
	StateAborted:     {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
