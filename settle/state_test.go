package settle

import "testing"

func TestTransitions_DoneIsTerminal(t *testing.T) {
	if dests, ok := transitions[StateDone]; ok && len(dests) > 0 {
		t.Fatalf("Done has outgoing transitions: %v", dests)
	}
	for from, dests := range transitions {
		for _, to := range dests {
			if to == StateInitial {
				t.Errorf("%v -> Initial: nothing may re-enter the initial state", from)
			}
		}
	}
}

func TestTransitions_EveryStateReachesInvokeCallback(t *testing.T) {
	// Every non-terminal state must have a path to InvokeCallback: all
	// termination paths converge on exactly one callback invocation.
	reaches := func(start State) bool {
		seen := map[State]bool{}
		stack := []State{start}
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if s == StateInvokeCallback {
				return true
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			stack = append(stack, transitions[s]...)
		}
		return false
	}

	for s := StateInitial; s < StateDone; s++ {
		if !reaches(s) {
			t.Errorf("no path from %v to InvokeCallback", s)
		}
	}
}

func TestValidTransition_RejectsOutOfTable(t *testing.T) {
	if validTransition(StateInitial, StateWaitForNetworkIdle) {
		t.Error("Initial -> WaitForNetworkIdle must be illegal")
	}
	if validTransition(StateInvokeCallback, StateFrameGoingAway) {
		t.Error("InvokeCallback -> FrameGoingAway must be illegal")
	}
	if !validTransition(StateWaitForMainThreadIdle, StatePaintStabilityReached) {
		t.Error("WaitForMainThreadIdle -> PaintStabilityReached must be legal")
	}
}

func TestStateString_AllNamed(t *testing.T) {
	for s := StateInitial; s <= StateDone; s++ {
		if s.String() == "Unknown" {
			t.Errorf("state %d has no name", int(s))
		}
	}
	if State(99).String() != "Unknown" {
		t.Error("out-of-range state should stringify as Unknown")
	}
}
