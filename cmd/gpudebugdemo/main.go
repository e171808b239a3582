// Command gpudebugdemo runs the gpudebug pipeline against the in-process
// wgpu host and prints what reaches the sink.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/gpudebug"
	wgpuhost "github.com/gogpu/gpudebug/backend/wgpu"
	"github.com/gogpu/gpudebug/shader"
)

const demoShader = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color
}
`

type options struct {
	markers bool
	drain   bool
	noColor bool
	verbose bool
	shader  string
	batch   int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "gpudebugdemo",
		Short:        "Forward simulated GPU diagnostics to the console",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.markers, "markers", true, "annotate phases with debug groups")
	f.BoolVar(&opts.drain, "drain", false, "queue messages and drain them instead of using the callback")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log gpudebug internals to stderr")
	f.StringVar(&opts.shader, "shader", "", "WGSL file to check (default: a built-in broken shader)")
	f.IntVar(&opts.batch, "batch", gpudebug.DefaultBatchSize, "records per drain")
	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	if opts.noColor {
		color.NoColor = true
	}
	if opts.verbose {
		gpudebug.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	source := demoShader
	name := "demo.wgsl"
	if opts.shader != "" {
		b, err := os.ReadFile(opts.shader)
		if err != nil {
			return fmt.Errorf("read shader: %w", err)
		}
		source, name = string(b), opts.shader
	}

	host := wgpuhost.New(wgpuhost.Config{
		Adapter: gpucontext.AdapterInfo{Name: "gpudebug demo device", Type: gpucontext.AdapterTypeSoftware},
		Backend: gputypes.BackendVulkan,
	})
	proc, err := gpudebug.Setup(host, gpudebug.NewConsoleSink(cmd.OutOrStdout()),
		gpudebug.WithBatchSize(opts.batch))
	if err != nil {
		return err
	}
	if opts.drain {
		if err := host.SetDebugCallback(nil); err != nil {
			return err
		}
	}

	markers := gpudebug.NewMarkerManager(host, opts.markers)
	renderFrame(host, markers, name, source)

	if opts.drain {
		for {
			n, err := proc.DrainLog()
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}
	}
	return nil
}

// renderFrame stands in for an application's frame: it reports the kind of
// diagnostics a real device would produce while encoding.
func renderFrame(host *wgpuhost.Host, markers *gpudebug.MarkerManager, name, source string) {
	defer markers.PushMarker("frame").Release()

	func() {
		defer markers.PushMarker("shaders").Release()
		_, _ = shader.NewChecker(host).Check(name, source)
	}()

	func() {
		defer markers.PushMarker("upload").Release()
		host.Insert(gpudebug.SourceAPI, gpudebug.TypeOther, gpudebug.IDBufferMemoryInfo, gpudebug.SeverityNotification,
			"Buffer detailed info: will use VIDEO memory as the source for buffer object operations")
		host.ReportError(wgpuhost.ErrorFilterValidation, "copy size exceeds destination buffer")
	}()

	func() {
		defer markers.PushMarker("composite").Release()
		host.Insert(gpudebug.SourceAPI, gpudebug.TypePerformance, 131218, gpudebug.SeverityMedium,
			"Program/shader state performance warning: fragment shader recompiled based on GL state")
		host.Insert(gpudebug.SourceApplication, gpudebug.TypeMarker, 1, gpudebug.SeverityNotification, "frame presented")
	}()
}
