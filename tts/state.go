package tts

// State is the playback state of the controller.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateSpeaking means a session is reading aloud.
	StateSpeaking
	// StatePaused means the active session is paused.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status returns the notification that corresponds to s.
func (s State) Status() Status {
	switch s {
	case StateSpeaking:
		return StatusReading
	case StatePaused:
		return StatusPaused
	default:
		return StatusNotReading
	}
}

// Status is what listeners are told about playback.
type Status int

const (
	StatusNotReading Status = iota
	StatusReading
	StatusPaused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusReading:
		return "Reading"
	case StatusPaused:
		return "Paused"
	default:
		return "Not Reading"
	}
}

// Event is an input to the state machine.
type Event int

const (
	// EventStart is a new read request.
	EventStart Event = iota
	// EventEngineStart is the engine beginning an utterance.
	EventEngineStart
	EventPause
	EventResume
	EventStop
	// EventFinish is natural completion of the last chunk.
	EventFinish
	// EventFail is a terminal engine error.
	EventFail
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventEngineStart:
		return "engine-start"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStop:
		return "stop"
	case EventFinish:
		return "finish"
	case EventFail:
		return "fail"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateSpeaking,
		EventStop:  StateIdle,
	},
	StateSpeaking: {
		EventStart:       StateSpeaking,
		EventEngineStart: StateSpeaking,
		EventResume:      StateSpeaking,
		EventPause:       StatePaused,
		EventStop:        StateIdle,
		EventFinish:      StateIdle,
		EventFail:        StateIdle,
	},
	StatePaused: {
		EventStart:       StateSpeaking,
		EventEngineStart: StatePaused,
		EventResume:      StateSpeaking,
		EventPause:       StatePaused,
		EventStop:        StateIdle,
		EventFinish:      StateIdle,
		EventFail:        StateIdle,
	},
}

// Next is the transition function. It reports false, and returns s
// unchanged, when ev is not valid in s.
func Next(s State, ev Event) (State, bool) {
	to, ok := transitions[s][ev]
	if !ok {
		return s, false
	}
	return to, true
}

// StateMachine tracks the current state and reports status changes.
type StateMachine struct {
	current  State
	onChange func(from, to State)
}

// NewStateMachine creates a machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	return sm.current
}

// OnChange sets the callback invoked whenever the state actually changes.
func (sm *StateMachine) OnChange(fn func(from, to State)) {
	sm.onChange = fn
}

// Fire applies ev. It reports whether ev was valid in the current state.
func (sm *StateMachine) Fire(ev Event) bool {
	to, ok := Next(sm.current, ev)
	if !ok {
		return false
	}
	from := sm.current
	sm.current = to
	if from != to && sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}
