package wgpu

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpudebug"
)

type sinkCall struct {
	t   gpudebug.OutputType
	msg string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) Print(t gpudebug.OutputType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{t: t, msg: message})
}

// messages returns the non-stack prints.
func (s *recordingSink) messages() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkCall
	for i := 0; i < len(s.calls); i += 2 {
		out = append(out, s.calls[i])
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func setup(t *testing.T, cfg Config) (*Host, *gpudebug.Processor, *recordingSink) {
	t.Helper()
	h := New(cfg)
	sink := &recordingSink{}
	p, err := gpudebug.Setup(h, sink, gpudebug.WithStackTrace(func() string { return "stack" }))
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	return h, p, sink
}

func TestNewDefaults(t *testing.T) {
	h := New(Config{})
	n, err := h.MaxDebugMessageLength()
	if err != nil || n != DefaultMaxMessageLength {
		t.Errorf("MaxDebugMessageLength() = (%d, %v), want (%d, nil)", n, err, DefaultMaxMessageLength)
	}
	if h.cfg.LogCapacity != DefaultLogCapacity {
		t.Errorf("LogCapacity = %d, want %d", h.cfg.LogCapacity, DefaultLogCapacity)
	}
}

func TestOutputDisabledUntilEnabled(t *testing.T) {
	h := New(Config{})
	h.Insert(gpudebug.SourceApplication, gpudebug.TypeOther, 1, gpudebug.SeverityHigh, "early")
	if h.Pending() != 0 {
		t.Errorf("Pending() = %d before EnableDebugOutput, want 0", h.Pending())
	}
}

func TestSetupConfiguresHost(t *testing.T) {
	h, p, _ := setup(t, Config{MaxMessageLength: 300})
	if !h.Synchronous() {
		t.Error("Setup did not request synchronous output")
	}
	if p.MaxMessageLength() != 300 {
		t.Errorf("MaxMessageLength() = %d, want 300", p.MaxMessageLength())
	}
}

func TestErrorInsideGroupReportedOnPop(t *testing.T) {
	h, _, sink := setup(t, Config{})
	markers := gpudebug.NewMarkerManager(h, true)

	scope := markers.PushMarker("upload")
	h.ReportError(ErrorFilterValidation, "buffer usage mismatch")
	if sink.count() != 0 {
		t.Fatalf("error emitted before the group was popped")
	}
	scope.Release()

	msgs := sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	want := `GPU Validation error: buffer usage mismatch (in debug group "upload") (source: DebugSourceApi; type: DebugTypeError; id: 1; severity: DebugSeverityHigh)`
	if msgs[0] != (sinkCall{gpudebug.OutputPerformanceWarning, want}) {
		t.Errorf("message = %+v, want %q", msgs[0], want)
	}
	if h.Depth() != 0 {
		t.Errorf("Depth() = %d after release, want 0", h.Depth())
	}
}

func TestOnlyFirstErrorPerClassCaptured(t *testing.T) {
	h, _, sink := setup(t, Config{})
	markers := gpudebug.NewMarkerManager(h, true)

	scope := markers.PushMarker("pass")
	h.ReportError(ErrorFilterValidation, "first")
	h.ReportError(ErrorFilterValidation, "second")
	h.ReportError(ErrorFilterInternal, "driver bug")
	h.ReportError(ErrorFilterOutOfMemory, "no memory")
	scope.Release()

	msgs := sink.messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}
	wantPrefix := []string{"GPU Validation error: first", "GPU OutOfMemory error: no memory", "GPU Internal error: driver bug"}
	for i, p := range wantPrefix {
		if !strings.HasPrefix(msgs[i].msg, p) {
			t.Errorf("message %d = %q, want prefix %q", i, msgs[i].msg, p)
		}
	}
	if !strings.Contains(msgs[2].msg, "type: DebugTypeOther; id: 3; severity: DebugSeverityMedium") {
		t.Errorf("internal error metadata = %q", msgs[2].msg)
	}
	if !strings.Contains(msgs[1].msg, "id: 2; severity: DebugSeverityHigh") {
		t.Errorf("out of memory metadata = %q", msgs[1].msg)
	}
}

func TestNestedGroupsAttributeToInnermost(t *testing.T) {
	h, _, sink := setup(t, Config{})
	markers := gpudebug.NewMarkerManager(h, true)

	func() {
		defer markers.PushMarker("frame").Release()
		func() {
			defer markers.PushMarker("shadow").Release()
			h.ReportError(ErrorFilterValidation, "depth format")
		}()
		h.ReportError(ErrorFilterValidation, "swapchain")
	}()

	msgs := sink.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0].msg, `depth format (in debug group "shadow")`) {
		t.Errorf("first message = %q", msgs[0].msg)
	}
	if !strings.Contains(msgs[1].msg, `swapchain (in debug group "frame")`) {
		t.Errorf("second message = %q", msgs[1].msg)
	}
}

func TestUncapturedErrorEmittedImmediately(t *testing.T) {
	h, _, sink := setup(t, Config{})

	h.ReportError(ErrorFilterOutOfMemory, "texture allocation failed")

	msgs := sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if strings.Contains(msgs[0].msg, "debug group") {
		t.Errorf("uncaptured error mentions a group: %q", msgs[0].msg)
	}
}

func TestGroupNotificationsFilteredBySetup(t *testing.T) {
	h, _, sink := setup(t, Config{})
	if err := h.SetDebugCallback(nil); err != nil {
		t.Fatal(err)
	}
	markers := gpudebug.NewMarkerManager(h, true)

	markers.PushMarker("quiet").Release()

	if h.Pending() != 0 {
		t.Errorf("Pending() = %d, push/pop notifications should be filtered", h.Pending())
	}
	if sink.count() != 0 {
		t.Errorf("sink received %d calls for an empty group", sink.count())
	}
}

func TestGroupNotificationsWithoutFilter(t *testing.T) {
	h := New(Config{})
	if err := h.EnableDebugOutput(); err != nil {
		t.Fatal(err)
	}
	h.PushDebugGroup(gpudebug.SourceThirdParty, 7, "capture")
	h.PopDebugGroup()

	records := make([]gpudebug.LogRecord, 4)
	buf := make([]byte, 64)
	n, err := h.DebugMessageLog(records, buf)
	if err != nil || n != 2 {
		t.Fatalf("DebugMessageLog() = (%d, %v), want (2, nil)", n, err)
	}
	if records[0].Type != gpudebug.TypePushGroup || records[1].Type != gpudebug.TypePopGroup {
		t.Errorf("record types = %v, %v", records[0].Type, records[1].Type)
	}
	for i := range 2 {
		if records[i].Source != gpudebug.SourceThirdParty || records[i].ID != 7 {
			t.Errorf("record %d = %+v, want source ThirdParty id 7", i, records[i])
		}
	}
	if got := string(buf[:16]); got != "capture\x00capture\x00" {
		t.Errorf("buffer = %q", got)
	}
}

func TestQueuedMessagesDrained(t *testing.T) {
	h, p, sink := setup(t, Config{})
	if err := h.SetDebugCallback(nil); err != nil {
		t.Fatal(err)
	}

	h.Insert(gpudebug.SourceApplication, gpudebug.TypePerformance, 10, gpudebug.SeverityMedium, "slow clear")
	h.Insert(gpudebug.SourceApplication, gpudebug.TypeOther, gpudebug.IDBufferMemoryInfo, gpudebug.SeverityLow, "noise")
	h.Insert(gpudebug.SourceApplication, gpudebug.TypeMarker, 11, gpudebug.SeverityNotification, "frame 1")
	if h.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", h.Pending())
	}
	if sink.count() != 0 {
		t.Fatal("queued messages reached the sink before DrainLog")
	}

	n, err := p.DrainLog()
	if err != nil || n != 3 {
		t.Fatalf("DrainLog() = (%d, %v), want (3, nil)", n, err)
	}
	msgs := sink.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].t != gpudebug.OutputPerformanceWarning || !strings.HasPrefix(msgs[0].msg, "slow clear (") {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].t != gpudebug.OutputLogOnly || !strings.HasPrefix(msgs[1].msg, "frame 1 (") {
		t.Errorf("second message = %+v", msgs[1])
	}
	if h.Pending() != 0 {
		t.Errorf("Pending() = %d after drain, want 0", h.Pending())
	}
}

func TestDebugMessageLogStopsWhenBufferFull(t *testing.T) {
	h := New(Config{})
	_ = h.EnableDebugOutput()
	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "aaaa")
	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 2, gpudebug.SeverityLow, "bbbb")

	records := make([]gpudebug.LogRecord, 2)
	n, err := h.DebugMessageLog(records, make([]byte, 7))
	if err != nil || n != 1 {
		t.Fatalf("DebugMessageLog() = (%d, %v), want (1, nil)", n, err)
	}
	if records[0].Length != 5 {
		t.Errorf("Length = %d, want 5", records[0].Length)
	}
	if h.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.Pending())
	}
}

func TestLogOverflowDropsOldest(t *testing.T) {
	h := New(Config{LogCapacity: 2})
	_ = h.EnableDebugOutput()
	for i := range 4 {
		h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, uint32(i), gpudebug.SeverityLow, "m")
	}
	if h.Pending() != 2 || h.Dropped() != 2 {
		t.Fatalf("Pending() = %d, Dropped() = %d, want 2 and 2", h.Pending(), h.Dropped())
	}

	records := make([]gpudebug.LogRecord, 4)
	n, _ := h.DebugMessageLog(records, make([]byte, 64))
	if n != 2 || records[0].ID != 2 || records[1].ID != 3 {
		t.Errorf("kept ids %d, %d, want 2, 3", records[0].ID, records[1].ID)
	}
}

func TestLoggerChangedAfterSetupReachesHost(t *testing.T) {
	orig := gpudebug.Logger()
	t.Cleanup(func() { gpudebug.SetLogger(orig) })

	h, _, _ := setup(t, Config{LogCapacity: 1})
	if err := h.SetDebugCallback(nil); err != nil {
		t.Fatalf("SetDebugCallback(nil) = %v", err)
	}

	var buf bytes.Buffer
	gpudebug.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "a")
	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 2, gpudebug.SeverityLow, "b")
	if h.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", h.Dropped())
	}
	if !strings.Contains(buf.String(), "message log full") {
		t.Errorf("overflow warning missing from log: %q", buf.String())
	}

	buf.Reset()
	gpudebug.SetLogger(nil)
	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 3, gpudebug.SeverityLow, "c")
	if buf.Len() != 0 {
		t.Errorf("log written after SetLogger(nil): %q", buf.String())
	}
}

func TestMessagesTruncatedToMaxLength(t *testing.T) {
	h, _, sink := setup(t, Config{MaxMessageLength: 6})

	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "abcdefghij")

	msgs := sink.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].msg, "abcde (") {
		t.Errorf("messages = %+v, want text truncated to 5 bytes", msgs)
	}
}

func TestLatin1RoundTrip(t *testing.T) {
	h, _, sink := setup(t, Config{})

	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "déjà vu")

	msgs := sink.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].msg, "déjà vu (") {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestFilterLastRuleWins(t *testing.T) {
	h, _, sink := setup(t, Config{})
	low := gpudebug.SeverityLow
	_ = h.SetDebugFilter(gpudebug.Filter{Severity: &low}, false)

	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "hidden")
	if sink.count() != 0 {
		t.Fatal("disabled severity reached the sink")
	}

	_ = h.SetDebugFilter(gpudebug.FilterAll, true)
	h.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "visible")
	if len(sink.messages()) != 1 {
		t.Error("re-enabled severity did not reach the sink")
	}
}

func TestLostDeviceFailsSetup(t *testing.T) {
	h := New(Config{})
	h.Lose("driver reset")

	_, err := gpudebug.Setup(h, &recordingSink{})
	if !errors.Is(err, ErrDeviceLost) || !IsDeviceLost(err) {
		t.Fatalf("Setup() = %v, want ErrDeviceLost", err)
	}
	if !strings.Contains(err.Error(), "driver reset") {
		t.Errorf("error %q lacks the loss reason", err)
	}
}

func TestLostDeviceFailsDrain(t *testing.T) {
	h, p, _ := setup(t, Config{})
	h.Lose("hang")

	if _, err := p.DrainLog(); !IsDeviceLost(err) {
		t.Errorf("DrainLog() = %v, want ErrDeviceLost", err)
	}
}

func TestPopWithoutPushPanics(t *testing.T) {
	h := New(Config{})
	defer func() {
		if recover() == nil {
			t.Error("PopDebugGroup on an empty stack did not panic")
		}
	}()
	h.PopDebugGroup()
}

func TestHostInfo(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	orig := gpudebug.Logger()
	gpudebug.SetLogger(l)
	t.Cleanup(func() { gpudebug.SetLogger(orig) })

	cfg := Config{
		Adapter: gpucontext.AdapterInfo{Name: "llvmpipe", Type: gpucontext.AdapterTypeSoftware},
		Backend: gputypes.BackendVulkan,
	}
	h, _, _ := setup(t, cfg)

	if h.AdapterInfo().Name != "llvmpipe" || h.Backend() != gputypes.BackendVulkan {
		t.Errorf("host info = %+v, %v", h.AdapterInfo(), h.Backend())
	}
	out := buf.String()
	for _, want := range []string{"adapter=llvmpipe", "adapter_type=Software", "backend=Vulkan"} {
		if !strings.Contains(out, want) {
			t.Errorf("setup log %q lacks %q", out, want)
		}
	}
}

func TestCallbackMayReenterHost(t *testing.T) {
	h := New(Config{})
	_ = h.EnableDebugOutput()
	var got []string
	_ = h.SetDebugCallback(func(_ gpudebug.Source, _ gpudebug.Type, id uint32, _ gpudebug.Severity, msg []byte) {
		got = append(got, string(msg))
		if id == 1 {
			h.Insert(gpudebug.SourceApplication, gpudebug.TypeOther, 2, gpudebug.SeverityLow, "nested")
		}
	})

	h.Insert(gpudebug.SourceApplication, gpudebug.TypeOther, 1, gpudebug.SeverityLow, "outer")

	if strings.Join(got, ",") != "outer,nested" {
		t.Errorf("callback saw %v", got)
	}
}
