package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/gogpu/gpudebug"
)

// Default limits used when Config leaves them zero.
const (
	DefaultMaxMessageLength = 1024
	DefaultLogCapacity      = 128
)

// Ids of events produced from captured GPU errors.
const (
	IDValidationError  uint32 = 1
	IDOutOfMemoryError uint32 = 2
	IDInternalError    uint32 = 3
)

// ErrorFilter selects the class of a reported GPU error.
type ErrorFilter = core.ErrorFilter

const (
	ErrorFilterValidation  = core.ErrorFilterValidation
	ErrorFilterOutOfMemory = core.ErrorFilterOutOfMemory
	ErrorFilterInternal    = core.ErrorFilterInternal
)

// ErrDeviceLost is returned by every host operation after Lose.
var ErrDeviceLost = hal.ErrDeviceLost

// scopeFilters are pushed, in this order, for every debug group so that any
// error raised inside the group is attributed to it.
var scopeFilters = [...]ErrorFilter{ErrorFilterValidation, ErrorFilterOutOfMemory, ErrorFilterInternal}

// Config describes the device a Host reports on.
type Config struct {
	// Adapter is reported through gpudebug.HostInfo.
	Adapter gpucontext.AdapterInfo

	// Backend is reported through gpudebug.HostInfo.
	Backend gputypes.Backend

	// MaxMessageLength bounds message size including the terminator.
	// Longer messages are truncated.
	MaxMessageLength int

	// LogCapacity bounds the number of queued messages kept while no
	// callback is registered. The oldest message is dropped on overflow.
	LogCapacity int
}

type group struct {
	source gpudebug.Source
	id     uint32
	label  string
}

type rule struct {
	filter  gpudebug.Filter
	enabled bool
}

type entry struct {
	rec  gpudebug.LogRecord
	text []byte
}

// Host is an in-process debug-output host. Debug groups are backed by
// WebGPU error scopes: each pushed group captures the first error of every
// class reported inside it, and popping the group emits the captured errors
// as diagnostic events.
//
// Host implements gpudebug.DiagnosticHost, gpudebug.MarkerHost and
// gpudebug.HostInfo. It is safe for concurrent use; callbacks are invoked on
// the goroutine that caused the event, outside the host lock.
type Host struct {
	cfg    Config
	scopes *core.ErrorScopeManager
	logger atomic.Pointer[slog.Logger]

	mu          sync.Mutex
	output      bool
	synchronous bool
	lost        error
	callback    gpudebug.Callback
	rules       []rule
	groups      []group
	queue       []entry
	dropped     int
}

// New returns a Host with output disabled, as a freshly created device has.
func New(cfg Config) *Host {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = DefaultLogCapacity
	}
	return &Host{
		cfg:    cfg,
		scopes: core.NewErrorScopeManager(),
	}
}

// SetLogger sets the logger for host diagnostics. Nil restores the
// gpudebug package logger.
func (h *Host) SetLogger(l *slog.Logger) {
	h.logger.Store(l)
}

func (h *Host) log() *slog.Logger {
	if l := h.logger.Load(); l != nil {
		return l
	}
	return gpudebug.Logger()
}

// AdapterInfo returns the configured adapter description.
func (h *Host) AdapterInfo() gpucontext.AdapterInfo { return h.cfg.Adapter }

// Backend returns the configured backend.
func (h *Host) Backend() gputypes.Backend { return h.cfg.Backend }

// Lose marks the device as lost. Subsequent host calls fail with an error
// wrapping ErrDeviceLost.
func (h *Host) Lose(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = fmt.Errorf("%w: %s", ErrDeviceLost, reason)
}

// EnableDebugOutput turns on message emission.
func (h *Host) EnableDebugOutput() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return h.lost
	}
	h.output = true
	return nil
}

// EnableDebugOutputSynchronous records that the callback must run on the
// triggering goroutine. Host always delivers that way; the flag is kept for
// Synchronous.
func (h *Host) EnableDebugOutputSynchronous() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return h.lost
	}
	h.synchronous = true
	return nil
}

// Synchronous reports whether synchronous output was requested.
func (h *Host) Synchronous() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.synchronous
}

// SetDebugCallback replaces the registered callback. A nil callback sends
// messages to the log again.
func (h *Host) SetDebugCallback(cb gpudebug.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return h.lost
	}
	h.callback = cb
	return nil
}

// MaxDebugMessageLength returns the configured message bound.
func (h *Host) MaxDebugMessageLength() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return 0, h.lost
	}
	return h.cfg.MaxMessageLength, nil
}

// SetDebugFilter appends a filter rule. When several rules match a message
// the most recent one decides; a message no rule matches is emitted.
func (h *Host) SetDebugFilter(f gpudebug.Filter, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return h.lost
	}
	h.rules = append(h.rules, rule{filter: f, enabled: enabled})
	return nil
}

// DebugMessageLog moves queued messages into records and buf. A message is
// only taken if its text and terminator fit in the remaining buffer.
func (h *Host) DebugMessageLog(records []gpudebug.LogRecord, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost != nil {
		return 0, h.lost
	}

	n, off := 0, 0
	for n < len(records) && n < len(h.queue) {
		e := h.queue[n]
		if off+len(e.text)+1 > len(buf) {
			break
		}
		off += copy(buf[off:], e.text)
		buf[off] = 0
		off++
		records[n] = e.rec
		n++
	}
	h.queue = h.queue[n:]
	return n, nil
}

// Pending returns the number of queued messages.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Dropped returns the number of queued messages lost to log overflow.
func (h *Host) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Depth returns the number of open debug groups.
func (h *Host) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups)
}

// PushDebugGroup opens a debug group and its error scopes.
func (h *Host) PushDebugGroup(source gpudebug.Source, id uint32, label string) {
	h.mu.Lock()
	h.groups = append(h.groups, group{source: source, id: id, label: label})
	for _, f := range scopeFilters {
		h.scopes.PushErrorScope(f)
	}
	h.mu.Unlock()

	h.log().Debug("gpudebug/wgpu: push debug group", "id", id, "label", label)
	h.emit(source, gpudebug.TypePushGroup, id, gpudebug.SeverityNotification, label)
}

// PopDebugGroup closes the innermost debug group, emitting any error
// captured inside it. Popping with no open group panics.
func (h *Host) PopDebugGroup() {
	h.mu.Lock()
	if len(h.groups) == 0 {
		h.mu.Unlock()
		panic("gpudebug/wgpu: PopDebugGroup: no open debug group")
	}
	g := h.groups[len(h.groups)-1]
	h.groups = h.groups[:len(h.groups)-1]

	var captured []*core.GPUError
	for range scopeFilters {
		gpuErr, err := h.scopes.PopErrorScope()
		if err != nil {
			h.mu.Unlock()
			panic(fmt.Sprintf("gpudebug/wgpu: PopDebugGroup: %v", err))
		}
		if gpuErr != nil {
			captured = append(captured, gpuErr)
		}
	}
	h.mu.Unlock()

	// Scopes pop in reverse push order; report in push order.
	for i := len(captured) - 1; i >= 0; i-- {
		h.emitError(captured[i], g.label)
	}
	h.log().Debug("gpudebug/wgpu: pop debug group", "id", g.id, "label", g.label)
	h.emit(g.source, gpudebug.TypePopGroup, g.id, gpudebug.SeverityNotification, g.label)
}

// ReportError reports a GPU error. Inside a debug group it is held until the
// group is popped; otherwise it is emitted immediately.
func (h *Host) ReportError(filter ErrorFilter, message string) {
	if h.scopes.ReportError(filter, message) {
		return
	}
	h.emitError(&core.GPUError{Type: filter, Message: message}, "")
}

// Insert emits an application message, subject to the filter rules.
func (h *Host) Insert(source gpudebug.Source, typ gpudebug.Type, id uint32, severity gpudebug.Severity, text string) {
	h.emit(source, typ, id, severity, text)
}

func (h *Host) emitError(gpuErr *core.GPUError, label string) {
	typ, id, severity := gpudebug.TypeError, IDValidationError, gpudebug.SeverityHigh
	switch gpuErr.Type {
	case ErrorFilterOutOfMemory:
		id = IDOutOfMemoryError
	case ErrorFilterInternal:
		typ, id, severity = gpudebug.TypeOther, IDInternalError, gpudebug.SeverityMedium
	}
	text := gpuErr.Error()
	if label != "" {
		text = fmt.Sprintf("%s (in debug group %q)", text, label)
	}
	h.emit(gpudebug.SourceAPI, typ, id, severity, text)
}

// emit delivers one message. The callback runs without the host lock held
// so it may call back into the host.
func (h *Host) emit(source gpudebug.Source, typ gpudebug.Type, id uint32, severity gpudebug.Severity, text string) {
	msg := h.encode(text)

	h.mu.Lock()
	if !h.output || h.lost != nil || !h.allowed(source, typ, severity) {
		h.mu.Unlock()
		return
	}
	cb := h.callback
	if cb == nil {
		overflow := h.enqueue(gpudebug.LogRecord{
			Source:   source,
			Type:     typ,
			ID:       id,
			Severity: severity,
			Length:   len(msg) + 1,
		}, msg)
		h.mu.Unlock()
		if overflow {
			h.log().Warn("gpudebug/wgpu: message log full, oldest message dropped",
				"capacity", h.cfg.LogCapacity)
		}
		return
	}
	h.mu.Unlock()

	cb(source, typ, id, severity, msg)
}

// allowed evaluates the filter rules. Caller holds h.mu.
func (h *Host) allowed(source gpudebug.Source, typ gpudebug.Type, severity gpudebug.Severity) bool {
	for i := len(h.rules) - 1; i >= 0; i-- {
		if h.rules[i].filter.Matches(source, typ, severity) {
			return h.rules[i].enabled
		}
	}
	return true
}

// enqueue appends to the bounded log. Caller holds h.mu.
func (h *Host) enqueue(rec gpudebug.LogRecord, msg []byte) bool {
	overflow := false
	if len(h.queue) >= h.cfg.LogCapacity {
		h.queue = h.queue[1:]
		h.dropped++
		overflow = true
	}
	h.queue = append(h.queue, entry{rec: rec, text: msg})
	return overflow
}

// encode converts text to the host's single-byte form, truncated to the
// message bound. Characters outside Latin-1 become the ASCII substitute
// character (0x1a).
func (h *Host) encode(text string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	b, err := enc.Bytes([]byte(text))
	if err != nil {
		b = []byte(text)
	}
	if limit := h.cfg.MaxMessageLength - 1; len(b) > limit {
		b = b[:max(limit, 0)]
	}
	return b
}

var _ interface {
	gpudebug.DiagnosticHost
	gpudebug.MarkerHost
	gpudebug.HostInfo
} = (*Host)(nil)

// IsDeviceLost reports whether err was caused by Lose.
func IsDeviceLost(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
