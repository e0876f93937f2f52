package types

// State is a state of the payment flow controller.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateCheckingFunds State = "checking_funds"
	StateApproving     State = "approving"
	StateTransferring  State = "transferring"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

var transitions = map[State][]State{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnected, StateFailed},
	StateConnected:     {StateConnecting, StateCheckingFunds},
	StateCheckingFunds: {StateApproving, StateFailed},
	StateApproving:     {StateTransferring, StateFailed},
	StateTransferring:  {StateCompleted, StateFailed},
	StateCompleted:     {StateConnecting, StateCheckingFunds},
	StateFailed:        {StateConnecting, StateCheckingFunds},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// InFlight reports whether a provider call may be outstanding in this state.
func (s State) InFlight() bool {
	switch s {
	case StateConnecting, StateCheckingFunds, StateApproving, StateTransferring:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
