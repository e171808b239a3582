package gpudebug

import "sync/atomic"

// MarkerManager annotates regions of graphics commands with named debug
// groups that capture and profiling tools display.
//
// Marker ids start at 1 and increase by one per PushMarker on the same
// manager. When the manager is disabled every operation is a no-op, so call
// sites keep their structure without host cost.
type MarkerManager struct {
	host    MarkerHost
	enabled bool
	lastID  atomic.Uint32
}

// NewMarkerManager returns a manager pushing groups onto host. A nil host
// yields a disabled manager.
func NewMarkerManager(host MarkerHost, enabled bool) *MarkerManager {
	if host == nil && enabled {
		Logger().Warn("gpudebug: marker manager has no host, markers disabled")
		enabled = false
	}
	return &MarkerManager{host: host, enabled: enabled}
}

// Enabled reports whether markers reach the host.
func (m *MarkerManager) Enabled() bool {
	return m.enabled
}

// PushMarker opens a debug group named label and returns the scope that
// closes it. Scopes must be released in the reverse order they were pushed
// on the same command stream; the manager does not check this.
//
//	defer markers.PushMarker("shadow pass").Release()
func (m *MarkerManager) PushMarker(label string) *MarkerScope {
	if !m.enabled {
		return &MarkerScope{label: label}
	}
	id := m.lastID.Add(1)
	m.host.PushDebugGroup(SourceApplication, id, label)
	return &MarkerScope{m: m, id: id, label: label}
}

// PopMarker closes the innermost debug group. Prefer MarkerScope.Release.
func (m *MarkerManager) PopMarker() {
	if !m.enabled {
		return
	}
	m.host.PopDebugGroup()
}

// MarkerScope is one pushed debug group. It is owned by the code that
// pushed it and must be released exactly once.
type MarkerScope struct {
	m     *MarkerManager
	id    uint32
	label string
}

// ID returns the marker id, or 0 for a scope from a disabled manager.
func (s *MarkerScope) ID() uint32 { return s.id }

// Label returns the group label.
func (s *MarkerScope) Label() string { return s.label }

// Release pops the debug group. Releasing twice pops twice.
func (s *MarkerScope) Release() {
	if s.m == nil {
		return
	}
	s.m.PopMarker()
}
