// Package modal models the open/close protocol of UI modals as an
// explicit state machine. Each open modal is an instance keyed by a
// generated id, with its own one-shot callbacks, so opening a second
// modal can never clobber the callbacks of one still closing.
package modal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a modal lifecycle phase.
type State string

// Modal lifecycle: Closed -> Opening -> Open -> Closing -> Closed.
const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
)

// Sentinel errors for protocol violations.
var (
	ErrUnknownModal      = errors.New("unknown modal instance")
	ErrInvalidTransition = errors.New("invalid modal transition")
)

// Callbacks are the one-shot hooks of a modal instance. Each fires at
// most once for the lifetime of the instance; any may be nil.
type Callbacks struct {
	OnConfirm  func()
	OnCancel   func()
	OnFinalize func()
}

type instance struct {
	kind      string
	state     State
	callbacks Callbacks

	confirmed bool
	cancelled bool
	finalized bool
}

// Registry owns all live modal instances. Constructed explicitly and
// injected; commands drive the transitions.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*instance
	log       zerolog.Logger
}

// NewRegistry returns an empty modal registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{instances: map[string]*instance{}, log: log}
}

// Open creates a new instance in the opening state and returns its id.
func (r *Registry) Open(kind string, cb Callbacks) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.instances[id] = &instance{kind: kind, state: StateOpening, callbacks: cb}
	r.mu.Unlock()
	r.log.Debug().Str("modal_id", id).Str("kind", kind).Msg("modal opening")
	return id
}

// State reports the current state of an instance. A finalized (removed)
// instance reads as closed.
func (r *Registry) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	ins, ok := r.instances[id]
	if !ok {
		return StateClosed
	}
	return ins.state
}

// MarkOpened transitions opening -> open (the render layer reports the
// modal is visible).
func (r *Registry) MarkOpened(id string) error {
	_, err := r.transition(id, StateOpening, StateOpen, nil)
	return err
}

// Confirm fires the confirm callback and begins closing. Valid only
// while open.
func (r *Registry) Confirm(id string) error {
	fire, err := r.transition(id, StateOpen, StateClosing, func(ins *instance) func() {
		if ins.confirmed {
			return nil
		}
		ins.confirmed = true
		return ins.callbacks.OnConfirm
	})
	if err != nil {
		return err
	}
	call(fire)
	return nil
}

// Cancel fires the cancel callback and begins closing. Valid while
// opening or open, so a modal can be dismissed before it finished
// appearing.
func (r *Registry) Cancel(id string) error {
	fire, err := r.transition(id, StateOpening, StateClosing, func(ins *instance) func() {
		if ins.cancelled {
			return nil
		}
		ins.cancelled = true
		return ins.callbacks.OnCancel
	})
	if errors.Is(err, ErrInvalidTransition) {
		fire, err = r.transition(id, StateOpen, StateClosing, func(ins *instance) func() {
			if ins.cancelled {
				return nil
			}
			ins.cancelled = true
			return ins.callbacks.OnCancel
		})
	}
	if err != nil {
		return err
	}
	call(fire)
	return nil
}

// MarkClosed completes the lifecycle: closing -> closed, fires the
// finalize callback, and removes the instance.
func (r *Registry) MarkClosed(id string) error {
	r.mu.Lock()
	ins, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModal, id)
	}
	if ins.state != StateClosing {
		state := ins.state
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, state, StateClosed)
	}
	var fire func()
	if !ins.finalized {
		ins.finalized = true
		fire = ins.callbacks.OnFinalize
	}
	delete(r.instances, id)
	r.mu.Unlock()

	call(fire)
	return nil
}

// transition moves an instance from one exact state to another, and
// optionally extracts a callback to fire after the lock is released.
func (r *Registry) transition(id string, from, to State, pick func(*instance) func()) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ins, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModal, id)
	}
	if ins.state != from {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ins.state, to)
	}
	ins.state = to
	if pick == nil {
		return nil, nil
	}
	return pick(ins), nil
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
