package irrigation

import "sync"

// Change describes a single effective mutation of the mirror. Exactly one of
// the value kinds is meaningful: Value for FieldPump/FieldAutoMode, Profile
// for a profile switch (Field is empty).
type Change struct {
	Field   Field
	Value   bool
	Profile *PlantProfile
}

// Observer is told about every effective mirror change.
type Observer interface {
	StateChanged(c Change)
}

type ObserverFunc func(c Change)

func (f ObserverFunc) StateChanged(c Change) { f(c) }

// Mirror tracks the device's last confirmed pump and auto-mode state and the
// active plant profile. It is the source of truth for newly connected
// clients.
type Mirror struct {
	mu       sync.RWMutex
	state    DeviceState
	profile  *PlantProfile
	observer Observer
}

// NewMirror creates a mirror starting at initial. observer may be nil.
func NewMirror(initial DeviceState, observer Observer) *Mirror {
	initial.CurrentPlantType = ""
	return &Mirror{state: initial, observer: observer}
}

func (m *Mirror) State() DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Profile returns a copy of the active plant profile.
func (m *Mirror) Profile() (PlantProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return PlantProfile{}, false
	}
	return *m.profile, true
}

// ApplyConfirmed records a state the device has reported. Setting a field to
// its current value changes nothing and notifies no one. Unknown fields are
// ignored.
func (m *Mirror) ApplyConfirmed(field Field, value bool) DeviceState {
	m.mu.Lock()
	changed := false
	switch field {
	case FieldPump:
		changed = m.state.PumpActive != value
		m.state.PumpActive = value
	case FieldAutoMode:
		changed = m.state.AutoMode != value
		m.state.AutoMode = value
	}
	state := m.state
	m.mu.Unlock()

	if changed {
		m.notify(Change{Field: field, Value: value})
	}
	return state
}

// ApplyProfile makes p the active profile. Re-applying the active plant type
// with identical thresholds is a no-op.
func (m *Mirror) ApplyProfile(p PlantProfile) DeviceState {
	m.mu.Lock()
	changed := m.profile == nil || *m.profile != p
	cp := p
	m.profile = &cp
	m.state.CurrentPlantType = p.PlantType
	state := m.state
	m.mu.Unlock()

	if changed {
		m.notify(Change{Profile: &p})
	}
	return state
}

func (m *Mirror) notify(c Change) {
	if m.observer != nil {
		m.observer.StateChanged(c)
	}
}
