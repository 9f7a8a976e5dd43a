// Command fgdemo renders frames of the demo pass list headlessly and
// prints per-frame graph statistics.
//
// Without a GPU backend linked in, both backends run on the noop HAL
// device, which records every command and executes none.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	_ "github.com/gogpu/framegraph/backend/native"
	wgpubackend "github.com/gogpu/framegraph/backend/wgpu"
	"github.com/gogpu/framegraph/internal/parallel"
	"github.com/gogpu/framegraph/passes"
	"github.com/gogpu/framegraph/render"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const occluderCount = 16

func main() {
	var (
		name    = flag.String("backend", backend.BackendNative, "backend: native, wgpu or empty for the registry default")
		frames  = flag.Int("frames", 60, "frames to render")
		width   = flag.Int("width", 1280, "render width")
		height  = flag.Int("height", 720, "render height")
		debug   = flag.Bool("debug", false, "panic on declaration errors")
		alias   = flag.Bool("alias", true, "share backings between disjoint transients")
		reorder = flag.Bool("reorder", false, "reorder passes to spread dependencies")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	be, release, err := openBackend(*name)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer release()

	g, err := framegraph.New(be,
		framegraph.WithDebug(*debug),
		framegraph.WithAliasing(*alias),
		framegraph.WithReordering(*reorder),
	)
	if err != nil {
		log.Fatalf("graph: %v", err)
	}
	defer g.Close()

	occluders, err := g.CreatePersistentBuffer(passes.Occluders, passes.OccluderDesc(occluderCount))
	if err != nil {
		log.Fatalf("occluders: %v", err)
	}

	q := parallel.NewQueue()
	defer q.Close()

	//nolint:gosec // G115: flag values are small
	extent := passes.Extent{Width: uint32(*width), Height: uint32(*height)}
	r, err := render.New(g, passes.Frame(extent, nil),
		render.WithTaskQueue(q),
		render.WithUploads(render.Upload{Target: occluders, Fill: orbit}),
	)
	if err != nil {
		log.Fatalf("renderer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := message.NewPrinter(language.English)
	p.Printf("%s backend, %d x %d, %d frames\n", be.Name(), extent.Width, extent.Height, *frames)
	for i := 0; i < *frames && ctx.Err() == nil; i++ {
		if err := r.Render(ctx); err != nil {
			log.Printf("frame %d: %v", i, err)
		}
	}

	st := r.Stats()
	p.Printf("frames %d (%d failed), barriers %d, stalls %d, uploads %d\n",
		st.Frames, st.Failed, st.Barriers, st.Stalls, st.Uploads)
	for _, t := range st.Last {
		p.Printf("  %-20s %12d ns\n", t.Name, t.Elapsed.Nanoseconds())
	}
	bs := be.Stats()
	p.Printf("device: %d textures, %d buffers, %d dispatches, %d draws, %d submits\n",
		bs.TexturesCreated, bs.BuffersCreated, bs.Dispatches, bs.Draws, bs.Submits)
	fmt.Println(g.PoolStats())
}

// openBackend returns an initialized backend and a func releasing it.
func openBackend(name string) (backend.Backend, func(), error) {
	if name != backend.BackendWGPU {
		be, err := backend.Open(name)
		if err != nil {
			return nil, nil, err
		}
		return be, be.Close, nil
	}

	// The public API has no noop backend of its own; wrap the HAL one.
	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, err
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, nil, backend.ErrBackendNotAvailable
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		return nil, nil, err
	}
	device, err := wgpu.NewDeviceFromHAL(open.Device, open.Queue, 0, gputypes.DefaultLimits(), "fgdemo")
	if err != nil {
		return nil, nil, err
	}
	be := wgpubackend.New(wgpubackend.WithDevice(device))
	if err := be.Init(); err != nil {
		device.Release()
		return nil, nil, err
	}
	return be, func() {
		be.Close()
		device.Release()
	}, nil
}

// orbit moves the occluders on a circle around the screen center. Each
// occluder is (x, y, radius, depth) in screen space.
func orbit(frame uint64, dst []byte) error {
	t := float64(frame) / 60
	for i := range occluderCount {
		a := t + 2*math.Pi*float64(i)/occluderCount
		v := [4]float32{
			float32(0.5 + 0.3*math.Cos(a)),
			float32(0.5 + 0.3*math.Sin(a)),
			0.04,
			float32(0.6 + 0.2*math.Sin(3*a)),
		}
		for j, f := range v {
			binary.LittleEndian.PutUint32(dst[(i*4+j)*4:], math.Float32bits(f))
		}
	}
	return nil
}
