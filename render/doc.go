// Package render drives a frame graph through a fixed list of passes.
//
// A [Renderer] owns one [framegraph.Scratch] per pass and resets it at the
// start of every frame. Each frame it runs Setup for every pass in order,
// compiles against the outputs the passes report, executes and ends the
// frame.
//
// CPU work that produces buffer contents (scene data, occluder lists) is
// registered as an [Upload]. Uploads run on an optional task queue while
// the frame is being declared and compiled, and are written to their
// buffers before Execute.
//
//	r := render.New(g, passes.Frame(extent, nil), render.WithTaskQueue(q))
//	for range frames {
//	    if err := r.Render(ctx); err != nil {
//	        log.Printf("frame: %v", err)
//	    }
//	}
//
// The Renderer does not own the graph, the passes or the queue.
package render
