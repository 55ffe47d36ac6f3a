package workflow

// State is the constraint satisfied by every lifecycle enum driven by a
// state machine (audit stage, evaluation, visit, finding, report approval).
type State interface {
	comparable
	IsValid() bool
	String() string
}

// Trigger is the constraint satisfied by the events that move a machine.
type Trigger interface {
	comparable
	String() string
}
