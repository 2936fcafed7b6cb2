// Command fgplan compiles a render graph description against a headless
// device and prints the resulting execution plan.
//
// Usage:
//
//	fgplan [options] GRAPH_PATH...
//
// GRAPH_PATH is an .hcl file or a directory of .hcl files.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend/native"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/memory"
)

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		fmt.Fprintln(os.Stderr, "fgplan:", err)
		os.Exit(code)
	}
}

type options struct {
	paths     []string
	width     uint
	height    uint
	frames    int
	run       int
	logLevel  string
	logFormat string
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("fgplan", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, "Usage:\n  fgplan [options] GRAPH_PATH...\n\nOptions:\n")
		fs.PrintDefaults()
	}
	var o options
	graph := fs.String("graph", "", "Path to the graph file or directory.")
	fs.UintVar(&o.width, "width", 1280, "Swapchain width in pixels.")
	fs.UintVar(&o.height, "height", 720, "Swapchain height in pixels.")
	fs.IntVar(&o.frames, "frames", 0, "Frames in flight; 0 uses the description's frames_in_flight.")
	fs.IntVar(&o.run, "run", 0, "Number of frames to execute after compiling.")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Logging level: debug, info, warn or error.")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log output format: text or json.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil
		}
		return nil, &exitError{code: 2, err: err}
	}

	if *graph != "" {
		o.paths = append(o.paths, *graph)
	}
	o.paths = append(o.paths, fs.Args()...)
	switch {
	case len(o.paths) == 0:
		fs.Usage()
		return nil, &exitError{code: 2, err: errors.New("no graph path given")}
	case o.width == 0 || o.height == 0:
		return nil, &exitError{code: 2, err: errors.Newf("invalid extent %dx%d", o.width, o.height)}
	case o.frames < 0 || o.run < 0:
		return nil, &exitError{code: 2, err: errors.New("-frames and -run must not be negative")}
	}
	o.logLevel = strings.ToLower(o.logLevel)
	o.logFormat = strings.ToLower(o.logFormat)
	if _, ok := logLevels[o.logLevel]; !ok {
		return nil, &exitError{code: 2, err: errors.Newf("invalid -log-level %q", o.logLevel)}
	}
	if o.logFormat != "text" && o.logFormat != "json" {
		return nil, &exitError{code: 2, err: errors.Newf("invalid -log-format %q", o.logFormat)}
	}
	return &o, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevels[level]}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(out, logOut io.Writer, args []string) error {
	o, err := parseFlags(args, logOut)
	if err != nil || o == nil {
		return err
	}
	framegraph.SetLogger(newLogger(o.logLevel, o.logFormat, logOut))
	defer framegraph.SetLogger(nil)

	desc, err := config.Load(o.paths...)
	if err != nil {
		return err
	}
	frames := o.frames
	if frames == 0 {
		frames = max(desc.FramesInFlight, 2)
	}

	device, err := native.NewDevice(&noop.Device{}, &noop.Queue{})
	if err != nil {
		return err
	}
	extent := framegraph.Extent{Width: uint32(o.width), Height: uint32(o.height)}
	swapchain, err := native.NewOffscreenSwapchain(device, extent, gputypes.TextureFormatBGRA8Unorm, frames)
	if err != nil {
		return err
	}
	defer swapchain.Destroy()
	alloc, err := memory.New(device, frames)
	if err != nil {
		return err
	}
	defer alloc.Destroy()

	recorded := make(map[string]int)
	b := framegraph.NewGraphBuilder(device, swapchain, alloc, framegraph.WithLabel(o.paths[0]))
	err = desc.Apply(b, config.WithRecordFuncs(func(p *config.Pass) framegraph.RecordFunc {
		return func(*framegraph.ExecutionContext) { recorded[p.Name]++ }
	}))
	if err != nil {
		return err
	}
	g, err := b.CreateGraph()
	if err != nil {
		return err
	}
	defer g.Destroy()

	writePlan(out, g)
	writeBarriers(out, g)
	for range o.run {
		if err := g.Execute(); err != nil {
			return errors.Wrapf(err, "frame %d", g.FrameNumber())
		}
	}
	if o.run > 0 {
		writeRecorded(out, g, recorded)
	}
	fmt.Fprintf(out, "\n%s\n", alloc.Stats())
	st := device.Stats()
	fmt.Fprintf(out, "Device[%d blocks, %d buffers, %d textures, %d views, %d render passes, %d framebuffers, %d submissions]\n",
		st.Blocks, st.Buffers, st.Textures, st.Views, st.RenderPasses, st.Framebuffers, st.Submissions)
	return nil
}
