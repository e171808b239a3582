package gpudebug

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Callback is the shape of the function a DiagnosticHost invokes for each
// emitted event. The message is the host's raw single-byte text without a
// terminator.
type Callback func(source Source, typ Type, id uint32, severity Severity, message []byte)

// Filter selects events by source, type and severity. A nil field matches
// everything (the driver's "don't care").
type Filter struct {
	Source   *Source
	Type     *Type
	Severity *Severity
}

// FilterAll matches every event.
var FilterAll = Filter{}

// FilterType returns a filter matching every event of type t.
func FilterType(t Type) Filter {
	return Filter{Type: &t}
}

// Matches reports whether an event with the given attributes is selected by f.
func (f Filter) Matches(source Source, typ Type, severity Severity) bool {
	if f.Source != nil && *f.Source != source {
		return false
	}
	if f.Type != nil && *f.Type != typ {
		return false
	}
	if f.Severity != nil && *f.Severity != severity {
		return false
	}
	return true
}

// LogRecord describes one entry returned by DiagnosticHost.DebugMessageLog.
// Length counts the message bytes including the NUL terminator. It is
// informational: texts are read from the drain buffer by NUL separator.
type LogRecord struct {
	Source   Source
	Type     Type
	ID       uint32
	Severity Severity
	Length   int
}

// DiagnosticHost is the debug-output capability of the graphics host.
//
// The host owns a single callback slot; registering again replaces the
// previous callback.
type DiagnosticHost interface {
	// EnableDebugOutput turns on diagnostic event emission.
	EnableDebugOutput() error

	// EnableDebugOutputSynchronous makes the host invoke the callback on the
	// goroutine that triggered the event, before the triggering call returns.
	EnableDebugOutputSynchronous() error

	// SetDebugCallback registers cb as the sole recipient of events.
	SetDebugCallback(cb Callback) error

	// MaxDebugMessageLength returns the longest message the host emits,
	// including the terminator.
	MaxDebugMessageLength() (int, error)

	// SetDebugFilter enables or disables emission of events matching f.
	SetDebugFilter(f Filter, enabled bool) error

	// DebugMessageLog moves up to len(records) queued events into records and
	// their NUL-terminated texts, concatenated, into buf. It returns the
	// number of records filled and never blocks.
	DebugMessageLog(records []LogRecord, buf []byte) (int, error)
}

// MarkerHost pushes and pops named debug groups on the host's command
// stream. Groups must be popped in LIFO order.
type MarkerHost interface {
	PushDebugGroup(source Source, id uint32, label string)
	PopDebugGroup()
}

// HostInfo is optionally implemented by hosts that can describe the
// adapter they run on.
type HostInfo interface {
	AdapterInfo() gpucontext.AdapterInfo
	Backend() gputypes.Backend
}
