// Package gpudebug forwards graphics driver diagnostics to application logs.
//
// # Overview
//
// gpudebug sits between a graphics API's debug-output facility and a text
// sink. It registers itself as the host's debug callback, drops known noisy
// messages and forwards the rest, with the call stack that triggered them,
// to an application-supplied [Sink]. It also annotates rendering phases with
// named debug groups visible in capture and profiling tools.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpudebug"
//	    wgpuhost "github.com/gogpu/gpudebug/backend/wgpu"
//	)
//
//	host := wgpuhost.New(wgpuhost.Config{})
//	proc, err := gpudebug.Setup(host, gpudebug.NewConsoleSink(os.Stderr))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	markers := gpudebug.NewMarkerManager(host, true)
//	func() {
//	    defer markers.PushMarker("shadow pass").Release()
//	    // ... encode commands
//	}()
//
//	// Without a callback the host queues messages; drain them per frame.
//	_, _ = proc.DrainLog()
//
// # Classification
//
// Debug-group push/pop notifications are dropped, as are ids in the
// [SuppressionSet]. Medium and high severity events are forwarded as
// [OutputPerformanceWarning]; low and notification severity as
// [OutputLogOnly]. Each forwarded event produces exactly two sink calls: the
// message with its metadata, then the call stack as log-only.
//
// # Architecture
//
//   - Public API: Processor, MarkerManager, Event, Sink
//   - Hosts: backend/wgpu (error-scope based, in process)
//   - Producers: shader (WGSL compiler diagnostics via naga)
package gpudebug
