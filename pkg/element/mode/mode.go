// Package mode implements the storage element lifecycle state machine:
// EDIT and RW accept writes, RO serves reads, AR is a metadata-only
// archive. Runtime transitions only ever reduce capability.
package mode

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/registry"
)

// ErrInvalidTransition is returned for mode changes outside the state
// machine. The element's mode is left untouched.
var ErrInvalidTransition = errors.New("invalid mode transition")

// Operation classifies what a request wants to do with file data.
type Operation string

const (
	OpCreate   Operation = "create"
	OpRead     Operation = "read"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpMetadata Operation = "metadata"
)

// apiTransitions is the degradation path available at runtime. EDIT is
// entered through configuration only and AR is terminal.
var apiTransitions = map[registry.Mode][]registry.Mode{
	registry.ModeEdit: {},
	registry.ModeRW:   {registry.ModeRO},
	registry.ModeRO:   {registry.ModeAR},
	registry.ModeAR:   {},
}

// modeOperations lists what each mode permits.
var modeOperations = map[registry.Mode][]Operation{
	registry.ModeEdit: {OpCreate, OpRead, OpUpdate, OpDelete, OpMetadata},
	registry.ModeRW:   {OpCreate, OpRead, OpUpdate, OpMetadata},
	registry.ModeRO:   {OpRead, OpMetadata},
	registry.ModeAR:   {OpMetadata},
}

// CanTransition reports whether the API may move an element from one mode
// to another.
func CanTransition(from, to registry.Mode) bool {
	for _, allowed := range apiTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Allows reports whether a mode permits an operation.
func Allows(mode registry.Mode, op Operation) bool {
	for _, allowed := range modeOperations[mode] {
		if allowed == op {
			return true
		}
	}
	return false
}

// TransitionMatrix returns the full state machine for the mode matrix
// endpoint: per mode, the allowed operations and reachable modes.
func TransitionMatrix() map[registry.Mode]Capabilities {
	matrix := make(map[registry.Mode]Capabilities, len(apiTransitions))
	for mode, targets := range apiTransitions {
		matrix[mode] = Capabilities{
			Operations:  append([]Operation(nil), modeOperations[mode]...),
			Transitions: append([]registry.Mode(nil), targets...),
		}
	}
	return matrix
}

// Capabilities describes one row of the transition matrix.
type Capabilities struct {
	Operations  []Operation     `json:"operations"`
	Transitions []registry.Mode `json:"transitions"`
}

// Change is one history entry.
type Change struct {
	From      registry.Mode `json:"from"`
	To        registry.Mode `json:"to"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason"`
}

// Manager serializes mode reads and transitions for one element and keeps
// the transition history.
type Manager struct {
	mu       sync.RWMutex
	current  registry.Mode
	history  []Change
	onChange func(Change)
}

// NewManager starts the element in its configured mode. The onChange
// callback (may be nil) fires after every accepted transition, outside the
// manager's lock.
func NewManager(initial registry.Mode, onChange func(Change)) *Manager {
	return &Manager{current: initial, onChange: onChange}
}

// Current returns the active mode.
func (m *Manager) Current() registry.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns a copy of the transition log, oldest first.
func (m *Manager) History() []Change {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Change(nil), m.history...)
}

// Allows reports whether the active mode permits the operation.
func (m *Manager) Allows(op Operation) bool {
	return Allows(m.Current(), op)
}

// Transition moves the element to a new mode if the transition is legal,
// recording {from, to, timestamp, reason}. Illegal transitions leave the
// mode unchanged.
func (m *Manager) Transition(to registry.Mode, reason string) (Change, error) {
	if !to.Valid() {
		return Change{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidTransition, to)
	}

	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return Change{}, fmt.Errorf("%w: already in %s", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return Change{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	change := Change{From: from, To: to, Timestamp: time.Now().UTC(), Reason: reason}
	m.current = to
	m.history = append(m.history, change)
	onChange := m.onChange
	m.mu.Unlock()

	logger.Info("storage element mode changed",
		"from", string(change.From),
		"to", string(change.To),
		"reason", change.Reason)
	if onChange != nil {
		onChange(change)
	}
	return change, nil
}

// Adopt applies a mode pushed by the admin through the topology channel.
// Pushes that are not legal transitions are logged and ignored; matching
// modes are a no-op.
func (m *Manager) Adopt(to registry.Mode, reason string) {
	if m.Current() == to {
		return
	}
	if _, err := m.Transition(to, reason); err != nil {
		logger.Warn("ignoring pushed mode change", "to", string(to), logger.Err(err))
	}
}
