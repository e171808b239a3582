// Package wgpu provides an in-process debug-output host built on gogpu/wgpu
// error scopes.
//
// WebGPU has no driver debug-message stream; errors are captured with error
// scopes instead. Host bridges the two models so that gpudebug can run
// unchanged on top of it:
//
//   - PushDebugGroup pushes one error scope per error class alongside the
//     group label; PopDebugGroup pops them and emits whatever they captured
//     as DebugSourceApi events tagged with the group label.
//   - ReportError outside any group is emitted immediately.
//   - With a callback registered, events are delivered on the reporting
//     goroutine; without one they queue in a bounded log read by
//     DebugMessageLog.
//
// # Usage
//
//	host := wgpu.New(wgpu.Config{
//	    Adapter: gpucontext.AdapterInfo{Name: "llvmpipe", Type: gpucontext.AdapterTypeSoftware},
//	    Backend: gputypes.BackendVulkan,
//	})
//	proc, err := gpudebug.Setup(host, sink)
//	markers := gpudebug.NewMarkerManager(host, true)
//
//	scope := markers.PushMarker("upload")
//	host.ReportError(wgpu.ErrorFilterValidation, "buffer usage mismatch")
//	scope.Release() // sink receives the validation error
package wgpu
