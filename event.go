package gpudebug

import (
	"fmt"
	"strconv"
)

// Source identifies the subsystem that emitted a diagnostic event.
type Source uint8

const (
	// SourceAPI is the graphics API itself.
	SourceAPI Source = iota

	// SourceWindowSystem is the platform window system binding.
	SourceWindowSystem

	// SourceShaderCompiler is the shader compiler.
	SourceShaderCompiler

	// SourceThirdParty is an external debugging or profiling tool.
	SourceThirdParty

	// SourceApplication is the application itself (markers, inserted messages).
	SourceApplication

	// SourceOther is any other source.
	SourceOther
)

// String returns the driver-style name of the source.
func (s Source) String() string {
	switch s {
	case SourceAPI:
		return "DebugSourceApi"
	case SourceWindowSystem:
		return "DebugSourceWindowSystem"
	case SourceShaderCompiler:
		return "DebugSourceShaderCompiler"
	case SourceThirdParty:
		return "DebugSourceThirdParty"
	case SourceApplication:
		return "DebugSourceApplication"
	case SourceOther:
		return "DebugSourceOther"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// Type is the category of a diagnostic event.
type Type uint8

const (
	// TypeError is an API error.
	TypeError Type = iota

	// TypeDeprecatedBehavior flags use of deprecated functionality.
	TypeDeprecatedBehavior

	// TypeUndefinedBehavior flags behavior the API leaves undefined.
	TypeUndefinedBehavior

	// TypePortability flags functionality that is not portable.
	TypePortability

	// TypePerformance flags a possible performance problem.
	TypePerformance

	// TypeMarker is a single inserted annotation.
	TypeMarker

	// TypePushGroup is emitted when a debug group is pushed.
	TypePushGroup

	// TypePopGroup is emitted when a debug group is popped.
	TypePopGroup

	// TypeOther is any other category.
	TypeOther
)

// String returns the driver-style name of the type.
func (t Type) String() string {
	switch t {
	case TypeError:
		return "DebugTypeError"
	case TypeDeprecatedBehavior:
		return "DebugTypeDeprecatedBehavior"
	case TypeUndefinedBehavior:
		return "DebugTypeUndefinedBehavior"
	case TypePortability:
		return "DebugTypePortability"
	case TypePerformance:
		return "DebugTypePerformance"
	case TypeMarker:
		return "DebugTypeMarker"
	case TypePushGroup:
		return "DebugTypePushGroup"
	case TypePopGroup:
		return "DebugTypePopGroup"
	case TypeOther:
		return "DebugTypeOther"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// IsGroup reports whether t is one of the debug-group push/pop categories.
func (t Type) IsGroup() bool {
	return t == TypePushGroup || t == TypePopGroup
}

// Severity is the driver-assigned importance of a diagnostic event.
type Severity uint8

const (
	// SeverityHigh covers errors and dangerous undefined behavior.
	SeverityHigh Severity = iota

	// SeverityMedium covers major performance warnings and deprecated use.
	SeverityMedium

	// SeverityLow covers redundant state changes and minor issues.
	SeverityLow

	// SeverityNotification is anything that is not an error or warning.
	SeverityNotification
)

// String returns the driver-style name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "DebugSeverityHigh"
	case SeverityMedium:
		return "DebugSeverityMedium"
	case SeverityLow:
		return "DebugSeverityLow"
	case SeverityNotification:
		return "DebugSeverityNotification"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// Event is a single diagnostic notice from the host.
//
// ID is host-assigned and only meaningful together with Source and Type;
// the same value may appear in different categories.
type Event struct {
	Source   Source
	Type     Type
	ID       uint32
	Severity Severity
	Text     string

	// StackTrace is the call stack captured when the event was forwarded.
	// It is set on the event returned by Processor.Process.
	StackTrace string
}

// String returns the display text forwarded to sinks: the message followed
// by its bracketed metadata.
func (e Event) String() string {
	b := make([]byte, 0, len(e.Text)+96)
	b = append(b, e.Text...)
	b = append(b, " (source: "...)
	b = append(b, e.Source.String()...)
	b = append(b, "; type: "...)
	b = append(b, e.Type.String()...)
	b = append(b, "; id: "...)
	b = strconv.AppendUint(b, uint64(e.ID), 10)
	b = append(b, "; severity: "...)
	b = append(b, e.Severity.String()...)
	b = append(b, ')')
	return string(b)
}
