package gpudebug

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Setup errors.
var (
	// ErrNilHost is returned by Setup when no host is given.
	ErrNilHost = errors.New("gpudebug: nil diagnostic host")

	// ErrNilSink is returned by Setup when no sink is given.
	ErrNilSink = errors.New("gpudebug: nil output sink")
)

// Processor receives diagnostic events from a host, drops known noise and
// forwards the rest to a Sink together with the current call stack.
//
// A Processor is created once by Setup and owns the host's callback slot;
// it is the only diagnostic state in the program and is passed explicitly
// to whoever drains the log. It is safe for concurrent use.
type Processor struct {
	host      DiagnosticHost
	sink      Sink
	suppress  SuppressionSet
	batchSize int
	stack     func() string

	// maxMessageLength is written once by Setup.
	maxMessageLength int

	// mu keeps the message and stack prints of one event adjacent.
	mu sync.Mutex
}

// Setup installs a new Processor as the host's debug callback.
//
// It enables debug output in synchronous mode, registers the callback,
// caches the host's maximum message length and configures the host filter
// to emit everything except debug-group push/pop notifications. Host
// failures are returned wrapped; nothing is retried. Calling Setup again on
// the same host replaces the earlier registration.
func Setup(host DiagnosticHost, sink Sink, opts ...Option) (*Processor, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	if sink == nil {
		return nil, ErrNilSink
	}

	o := defaultProcessorOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Processor{
		host:      host,
		sink:      sink,
		suppress:  o.suppress,
		batchSize: o.batchSize,
		stack:     o.stack,
	}

	if err := host.EnableDebugOutput(); err != nil {
		return nil, fmt.Errorf("gpudebug: setup: enable debug output: %w", err)
	}
	if err := host.EnableDebugOutputSynchronous(); err != nil {
		return nil, fmt.Errorf("gpudebug: setup: enable synchronous output: %w", err)
	}
	if err := host.SetDebugCallback(p.callback); err != nil {
		return nil, fmt.Errorf("gpudebug: setup: register callback: %w", err)
	}

	n, err := host.MaxDebugMessageLength()
	if err != nil {
		return nil, fmt.Errorf("gpudebug: setup: query max message length: %w", err)
	}
	p.maxMessageLength = n

	if err := host.SetDebugFilter(FilterAll, true); err != nil {
		return nil, fmt.Errorf("gpudebug: setup: enable all messages: %w", err)
	}
	for _, t := range []Type{TypePushGroup, TypePopGroup} {
		if err := host.SetDebugFilter(FilterType(t), false); err != nil {
			return nil, fmt.Errorf("gpudebug: setup: disable %s: %w", t, err)
		}
	}

	logSetup(host, p)
	return p, nil
}

func logSetup(host DiagnosticHost, p *Processor) {
	attrs := []any{
		"max_message_length", p.maxMessageLength,
		"suppressed_ids", p.suppress.IDs(),
	}
	if hi, ok := host.(HostInfo); ok {
		info := hi.AdapterInfo()
		attrs = append(attrs,
			"adapter", info.Name,
			"adapter_type", info.Type.String(),
			"backend", hi.Backend().String(),
		)
	}
	Logger().Info("gpudebug: debug output enabled", attrs...)
}

// MaxMessageLength returns the host's maximum message length cached by Setup.
func (p *Processor) MaxMessageLength() int {
	return p.maxMessageLength
}

// Suppressions returns the processor's suppression set.
func (p *Processor) Suppressions() SuppressionSet {
	return p.suppress
}

// callback is registered with the host.
func (p *Processor) callback(source Source, typ Type, id uint32, severity Severity, message []byte) {
	p.Process(Event{
		Source:   source,
		Type:     typ,
		ID:       id,
		Severity: severity,
		Text:     decodeMessage(message),
	})
}

// Classify decides how ev would be forwarded. It returns false when ev is
// dropped: debug-group notifications and suppressed ids never reach a sink.
// Medium and high severity events are performance warnings; everything else
// is log-only.
func (p *Processor) Classify(ev Event) (OutputType, bool) {
	if ev.Type.IsGroup() {
		return OutputLogOnly, false
	}
	if p.suppress.Contains(ev.ID) {
		return OutputLogOnly, false
	}
	if ev.Severity == SeverityMedium || ev.Severity == SeverityHigh {
		return OutputPerformanceWarning, true
	}
	return OutputLogOnly, true
}

// Process classifies ev and, unless it is dropped, prints its display text
// followed by the current call stack. Every event results in either zero or
// two sink calls. Process returns the forwarded event with StackTrace set,
// or false when ev was dropped.
func (p *Processor) Process(ev Event) (Event, bool) {
	t, ok := p.Classify(ev)
	if !ok {
		Logger().Debug("gpudebug: event dropped",
			"id", ev.ID, "type", ev.Type.String(), "severity", ev.Severity.String())
		return ev, false
	}

	ev.StackTrace = p.stack()
	text := ev.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink.Print(t, text)
	p.sink.Print(OutputLogOnly, ev.StackTrace)
	return ev, true
}

// DrainLog pulls up to one batch of queued events from the host and
// processes them. It never waits for new events and returns the number of
// records the host handed over.
func (p *Processor) DrainLog() (int, error) {
	records := make([]LogRecord, p.batchSize)
	buf := make([]byte, max(p.maxMessageLength, 1)*p.batchSize)

	n, err := p.host.DebugMessageLog(records, buf)
	if err != nil {
		return 0, fmt.Errorf("gpudebug: drain log: %w", err)
	}
	n = min(max(n, 0), len(records))

	// Record lengths are informational; texts are taken up to the n-th NUL.
	messages := bytes.SplitN(buf, []byte{0}, n+1)

	for i := range n {
		var msg []byte
		if i < len(messages) {
			msg = messages[i]
		}
		r := records[i]
		p.Process(Event{
			Source:   r.Source,
			Type:     r.Type,
			ID:       r.ID,
			Severity: r.Severity,
			Text:     decodeMessage(msg),
		})
	}
	return n, nil
}

// decodeMessage converts host text to a Go string. Host strings are
// single-byte encoded; bytes above 0x7f are read as Latin-1.
func decodeMessage(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if isASCII(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
