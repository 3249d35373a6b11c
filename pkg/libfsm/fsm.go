package libfsm

// Finite state machines.
// Small table driven FSM used by the link monitor for per-link
// up/down tracking. Events are handed to the FSM by whichever
// goroutine owns it and are processed inline, in order.

import (
	"fmt"

	"github.com/golang/glog"
)

// Main FSM structure
type Fsm struct {
	transitions *FsmTable // FSM transition table
	FsmState    string    // FSM's current state
}

// FSM event
type Event struct {
	EventName string      // Name of the event
	EventData interface{} // Event specific data
}

// Callback function type
type CallbackFunc func(Event) error

// FSM transition entry
type Transition struct {
	CurrState string
	EventName string
	NewState  string
	Callback  CallbackFunc
}

type FsmTable []Transition

// Create a new Fsm
func NewFsm(fsmTable *FsmTable, initState string) *Fsm {
	fsm := new(Fsm)

	fsm.transitions = fsmTable
	fsm.FsmState = initState

	return fsm
}

// Handle a new event for the fsm. Events with no matching transition
// from the current state are rejected; a failing callback leaves the
// state unchanged.
func (self *Fsm) FsmEvent(event Event) error {
	glog.Infof("Processing event %s in state %s", event.EventName, self.FsmState)

	// find the <currState, event> pair in the transition table
	for _, trans := range *self.transitions {
		if trans.CurrState != self.FsmState || trans.EventName != event.EventName {
			continue
		}

		if trans.Callback != nil {
			if err := trans.Callback(event); err != nil {
				glog.Errorf("Processing event %s failed in state %s. Err: %v",
					event.EventName, self.FsmState, err)
				return err
			}
		}

		if self.FsmState != trans.NewState {
			glog.Infof("Transitioning to state %s", trans.NewState)
			self.FsmState = trans.NewState
		}

		return nil
	}

	glog.Errorf("Invalid event %s in state %s", event.EventName, self.FsmState)
	return fmt.Errorf("invalid event %s in state %s", event.EventName, self.FsmState)
}

// Check the current state
func (self *Fsm) InState(state string) bool {
	return self.FsmState == state
}
