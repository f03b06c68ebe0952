// Command enginedemo drives the glaphica runtime headlessly: it builds a
// document, feeds a scripted pointer stroke through the engine driver,
// runs the main/engine loops for a fixed wall-clock budget, and
// optionally records or replays the resulting event trace. It has no
// window and no real GPU device; nullDevice/nullQueue/nullSurface in
// hal_stub.go stand in for the gpucontext-backed handles a host application
// constructs from its own windowing setup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	glaphica "github.com/SunastanS/glaphica"
	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/driver"
	"github.com/SunastanS/glaphica/protocol"
	"github.com/SunastanS/glaphica/replay"
)

// scriptStroke feeds one straight horizontal stroke through the driver as
// screen-space pointer events, the way a tablet would, then requests
// shutdown by cancelling the run context.
func scriptStroke(ctx context.Context, drv *driver.Driver, stop context.CancelFunc) {
	defer stop()

	// Let the Init/Resize handshakes finish before painting.
	time.Sleep(50 * time.Millisecond)

	const session = 1
	if err := drv.HandlePointerEvent(100, 100, 0.7, protocol.PhaseBegin, session); err != nil {
		log.Printf("enginedemo: begin: %v", err)
		return
	}
	for x := 200.0; x <= 700; x += 100 {
		if ctx.Err() != nil {
			return
		}
		_ = drv.HandlePointerEvent(x, 100, 0.7, protocol.PhaseMove, session)
		time.Sleep(5 * time.Millisecond)
	}
	_ = drv.HandlePointerEvent(800, 100, 0.7, protocol.PhaseEnd, session)

	// Give the merge lifecycle a few ticks to complete and commit.
	time.Sleep(300 * time.Millisecond)
}

func main() {
	var (
		width        = flag.Int("width", 1024, "canvas width in pixels")
		height       = flag.Int("height", 768, "canvas height in pixels")
		replayOut    = flag.String("replay-out", "", "path to write a recorded event trace (JSONL), empty to disable")
		replayIn     = flag.String("replay-in", "", "path to a golden event trace to compare the recorded run against")
		scenarioName = flag.String("scenario", "enginedemo", "scenario_id stamped on recorded trace events")
	)
	flag.Parse()

	if glaphica.TraceEnabled(glaphica.EnvPerfLog) {
		log.Printf("enginedemo: starting, canvas %dx%d", *width, *height)
	}

	cfg := glaphica.DefaultAppConfig()
	cfg.Device = nullDevice{}
	cfg.Queue = nullQueue{}
	cfg.Surface = nullSurface{}
	cfg.ColorPageFactory = func(uint32) (atlas.GPUTextureArrayLayer, error) { return nullLayer{}, nil }
	cfg.BrushPageFactory = func(uint32) (atlas.GPUTextureArrayLayer, error) { return nullLayer{}, nil }
	cfg.MetricsRegistry = prometheus.NewRegistry()
	cfg.InitialWidth = uint32(*width)
	cfg.InitialHeight = uint32(*height)

	app := glaphica.New(cfg)

	var recorder *replay.Recorder
	if *replayOut != "" {
		f, err := os.Create(*replayOut)
		if err != nil {
			log.Fatalf("enginedemo: open replay-out: %v", err)
		}
		defer f.Close()
		recorder = replay.NewRecorder(f, *scenarioName)
		defer recorder.Close()
	}

	doc := app.Document()
	layer := doc.AddLeaf(doc.Root(), protocol.BlendNormal)
	if glaphica.TraceEnabled(glaphica.EnvPerfLog) {
		log.Printf("enginedemo: created layer %d", layer.ID)
	}

	drv := app.Driver()
	drv.SetActiveLayer(layer.ID)
	if recorder != nil {
		drv.SetRecorder(recorder)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := uint64(0)
	applied := func(frame protocol.GpuFeedbackFrame) {
		tick++
		if recorder != nil {
			_ = recorder.Record(tick, replay.PhaseFinalize, replay.KindStateDigest, replay.OutputPayload{
				StateDigest: &replay.StateDigestOutput{
					DocumentRevision:   doc.Revision(),
					RenderTreeRevision: uint64(frame.SubmitWaterline.Max(frame.CompleteWaterline)),
				},
			})
		}
	}

	go scriptStroke(ctx, drv, cancel)

	if err := app.RunUntilExit(ctx, applied); err != nil && ctx.Err() == nil {
		log.Fatalf("enginedemo: %v", err)
	}

	if *replayIn != "" && *replayOut != "" {
		golden, err := os.Open(*replayIn)
		if err != nil {
			log.Fatalf("enginedemo: open replay-in: %v", err)
		}
		defer golden.Close()
		recorded, err := os.Open(*replayOut)
		if err != nil {
			log.Fatalf("enginedemo: reopen replay-out: %v", err)
		}
		defer recorded.Close()
		if err := replay.CompareOutputStreams(golden, recorded); err != nil {
			log.Fatalf("enginedemo: recorded trace diverged from golden trace: %v", err)
		}
		fmt.Println("enginedemo: recorded trace matches golden trace")
	}
}
