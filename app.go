package glaphica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/document"
	"github.com/SunastanS/glaphica/driver"
	"github.com/SunastanS/glaphica/executor"
	"github.com/SunastanS/glaphica/fabric"
	"github.com/SunastanS/glaphica/merge"
	"github.com/SunastanS/glaphica/metrics"
	"github.com/SunastanS/glaphica/protocol"
	"github.com/SunastanS/glaphica/scheduler"
)

// AppConfig bundles everything the host process must supply to construct
// an App: the GPU handles it obtained from its windowing/device setup,
// and the runtime tunables every sub-package defaults sensibly but a
// caller may override.
type AppConfig struct {
	Device  executor.Device
	Queue   executor.Queue
	Surface executor.Surface

	// DeviceProvider optionally names the gpucontext host the full HAL
	// device is borrowed from. When it exposes HAL access, the Init
	// command builds the executor's compute pipelines on that device;
	// otherwise the runtime runs without them (headless/testing).
	DeviceProvider executor.DeviceHandle

	ColorPageFactory atlas.PageFactory
	BrushPageFactory atlas.PageFactory
	MaxColorPages    uint32
	MaxBrushPages    uint32

	Capacities        fabric.Capacities
	SchedulerConfig   scheduler.Config
	DriverConfig      driver.Config
	RetentionCapacity int

	MetricsRegistry prometheus.Registerer

	// InitialWidth/InitialHeight, when both nonzero, drive a Resize
	// handshake right after Init when the engine loop starts.
	InitialWidth  uint32
	InitialHeight uint32

	// Strict enables debug-build assertions (arena aliasing hazards,
	// fabric protocol violations) that panic instead of returning an
	// error. Leave false in release builds.
	Strict bool
}

// DefaultAppConfig fills in every tunable with its documented default,
// leaving the GPU handles and page factories for the caller to set.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Capacities:      fabric.DefaultCapacities(),
		SchedulerConfig: scheduler.DefaultConfig(),
		DriverConfig:    driver.DefaultConfig(),
		MaxColorPages:   64,
		MaxBrushPages:   16,
	}
}

// App is the runtime's top-level collaborator: it owns the document,
// merge engine, atlas stores, fabric bridge, and GPU executor, and joins
// the engine-thread and main-thread loops for the duration of
// RunUntilExit.
type App struct {
	doc       *document.Document
	merge     *merge.Engine
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	driver    *driver.Driver
	metrics   *metrics.Recorder

	bridge         *fabric.Bridge
	engineEndpoint fabric.EngineEndpoint
	mainEndpoint   fabric.MainEndpoint

	strict         bool
	initialWidth  uint32
	initialHeight uint32
}

// New constructs an App from cfg. It does not start any goroutines;
// call RunUntilExit to do that.
func New(cfg AppConfig) *App {
	doc := document.NewDocument()
	mergeEngine := merge.NewEngine(cfg.RetentionCapacity)

	var recorder *metrics.Recorder
	if cfg.MetricsRegistry != nil {
		recorder = metrics.NewRecorder(cfg.MetricsRegistry)
	}

	colorStore := atlas.NewStore(protocol.BackendRGBA8, cfg.MaxColorPages, cfg.ColorPageFactory)
	brushStore := atlas.NewStore(protocol.BackendR32Float, cfg.MaxBrushPages, cfg.BrushPageFactory)

	exCfg := executor.Config{
		Device:  cfg.Device,
		Queue:   cfg.Queue,
		Surface: cfg.Surface,
		Stores:  executor.Stores{Color: colorStore, Brush: brushStore},
		Doc:     doc,
		Merge:   mergeEngine,
		Metrics: recorder,
		Strict:  cfg.Strict,
	}
	if cfg.DeviceProvider != nil {
		if hal, _, err := executor.HalFromProvider(cfg.DeviceProvider); err == nil {
			exCfg.Hal = hal
		} else {
			Logger().Warn("device provider has no HAL access; compute pipelines disabled", "err", err)
		}
	}
	ex := executor.New(exCfg)

	bridge := fabric.NewBridge(cfg.Capacities)
	engineEndpoint, mainEndpoint := bridge.Endpoints()

	sched := scheduler.New(cfg.SchedulerConfig)
	drv := driver.New(engineEndpoint, mergeEngine, brushStore, sched, cfg.DriverConfig)
	drv.SetDocument(doc)

	// Atlas eviction pressure on the brush store flows into the merge
	// engine as a recorded capability downgrade, never a render abort.
	brushStore.OnEviction(func(n atlas.EvictionNotice) {
		mergeEngine.HandleAtlasEviction(n.RetainID)
	})

	return &App{
		doc:            doc,
		merge:          mergeEngine,
		executor:       ex,
		scheduler:      sched,
		driver:         drv,
		metrics:        recorder,
		bridge:         bridge,
		engineEndpoint: engineEndpoint,
		mainEndpoint:   mainEndpoint,
		strict:         cfg.Strict,
		initialWidth:   cfg.InitialWidth,
		initialHeight:  cfg.InitialHeight,
	}
}

// EngineEndpoint returns the channel handles the engine (input-owning)
// side of the process should drive: pushing pointer samples and control
// messages, consuming feedback frames.
func (a *App) EngineEndpoint() fabric.EngineEndpoint { return a.engineEndpoint }

// Driver returns the engine-side input driver. Hosts feed it pointer
// events (screen space) and set the active layer before strokes begin.
func (a *App) Driver() *driver.Driver { return a.driver }

// Document returns the engine's document tree, for a host that wants to
// build its initial layer structure before the loops start.
func (a *App) Document() *document.Document { return a.doc }

// RunUntilExit joins the main loop (pops commands from the GPU command
// channel, dispatches them through the executor, pushes feedback) and
// the engine loop (drains feedback into the mailbox and invokes apply)
// until ctx is cancelled or either side returns a fatal error.
func (a *App) RunUntilExit(ctx context.Context, apply func(protocol.GpuFeedbackFrame)) error {
	// Either loop exiting -- cleanly (close request) or with an error --
	// must wind the other one down too; errgroup alone only cancels on
	// error.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { defer cancel(); return a.runMainLoop(ctx) })
	group.Go(func() error { defer cancel(); return a.runEngineLoop(ctx, apply) })

	return group.Wait()
}

func (a *App) runMainLoop(ctx context.Context) error {
	state := fabric.NewMainLoopState(a.strict)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result := fabric.RunMainLoopTick(ctx, a.mainEndpoint, a.executor, state)
		if result.Fatal != nil {
			var fe *protocol.FabricError
			if a.metrics != nil && errors.As(result.Fatal, &fe) && fe.Kind == protocol.FabricFeedbackQueueTimeout {
				a.metrics.FeedbackQueueTimeouts.Inc()
			}
			return fmt.Errorf("glaphica: main loop: %w", result.Fatal)
		}
		if a.metrics != nil {
			a.metrics.SubmitWaterline.Set(float64(state.SubmitWaterline))
			a.metrics.ExecutedBatchWaterline.Set(float64(state.ExecutedBatchWaterline))
			a.metrics.CompleteWaterline.Set(float64(state.CompleteWaterline))
			a.metrics.RetainedStrokes.Set(float64(a.merge.RetainedCount()))
		}
	}
}

func (a *App) runEngineLoop(ctx context.Context, apply func(protocol.GpuFeedbackFrame)) error {
	a.driver.SetFeedbackObserver(apply)

	if err := a.driver.Init(ctx); err != nil {
		return fmt.Errorf("glaphica: init handshake: %w", err)
	}
	if a.initialWidth > 0 && a.initialHeight > 0 {
		if err := a.driver.Resize(ctx, a.initialWidth, a.initialHeight); err != nil {
			return fmt.Errorf("glaphica: resize handshake: %w", err)
		}
	}

	mailbox := fabric.NewMailboxState()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		drained, err := a.driver.Tick(ctx, mailbox)
		if err != nil {
			return fmt.Errorf("glaphica: engine loop: %w", err)
		}
		if a.driver.CloseRequested() {
			if err := a.driver.Shutdown(ctx, "close requested"); err != nil {
				Logger().Warn("shutdown handshake", "err", err)
			}
			return nil
		}
		if !drained {
			time.Sleep(fabric.MainLoopIdleSleep)
		}
	}
}
