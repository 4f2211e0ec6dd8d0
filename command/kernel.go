package command

import (
	"context"
	"sync"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
	"github.com/audiotab-dev/audiotab/internal/kernel"
	"github.com/audiotab-dev/audiotab/internal/logging"
	"github.com/audiotab-dev/audiotab/internal/ringbuf"
)

// KernelBinding holds the engine's live, mutable state: the running
// kernel and pipeline (if any) and the visualization ring buffer they
// feed. A Server owns exactly one KernelBinding across its lifetime and
// replaces the pipeline each time deploy_graph runs.
type KernelBinding struct {
	mu        sync.Mutex
	runtime   *kernel.Runtime
	pipeline  *audiotab.Pipeline
	ring      *ringbuf.RingBuffer
	ringPath  string
	logger    *logging.Logger
	scheduler *audiotab.PriorityScheduler
	release   func()
}

// NewKernelBinding constructs an empty binding; a pipeline attaches via
// deployGraph and a kernel runtime attaches via startKernel. maxConcurrent
// bounds the PriorityScheduler admitting startKernel calls by the
// deployed pipeline's pipeline_config.priority.
func NewKernelBinding(ringPath string, maxConcurrent int, logger *logging.Logger) *KernelBinding {
	return &KernelBinding{
		ringPath:  ringPath,
		logger:    logger,
		scheduler: audiotab.NewPriorityScheduler(maxConcurrent),
	}
}

func (k *KernelBinding) deployGraph(ctx context.Context, pipelineID string, graphJSON []byte, catalog *audiotab.Catalog) error {
	cfg, err := audiotab.ParseGraphConfig(graphJSON)
	if err != nil {
		return err
	}
	cfg.Translate(audiotab.DefaultUITranslation)
	p, err := audiotab.NewPipelineFromConfig(pipelineID, cfg, catalog)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pipeline != nil {
		k.pipeline.Stop(ctx)
	}
	k.pipeline = p
	return nil
}

// startKernel admits the deployed pipeline's run through the
// PriorityScheduler at its pipeline_config.priority before starting it,
// so a flood of concurrent deploys is throttled to maxConcurrent with
// higher-priority pipelines admitted first. The scheduler slot is
// acquired with the binding lock released: Acquire can block behind
// other running pipelines, and nothing touching the binding may wait
// that long with its lock held.
func (k *KernelBinding) startKernel(ctx context.Context, devices []hal.PacketSource, sourcePorts []string, calibrations []audiotab.Calibration) error {
	k.mu.Lock()
	if k.pipeline == nil {
		k.mu.Unlock()
		return audiotab.NewError("KernelBinding.startKernel", audiotab.ErrCodeInvalidConfig, "no pipeline deployed")
	}
	if k.runtime != nil {
		k.runtime.Stop(ctx)
		k.runtime = nil
	}
	if k.release != nil {
		k.release()
		k.release = nil
	}
	p := k.pipeline
	ring := k.ring
	k.mu.Unlock()

	release, err := k.scheduler.Acquire(ctx, p.Priority())
	if err != nil {
		return audiotab.WrapError("KernelBinding.startKernel", err)
	}

	if err := p.Start(ctx, nil); err != nil {
		release()
		return err
	}
	rt := kernel.NewRuntime(ctx, p, k.logger)
	if ring != nil {
		rt.SetRing(ring)
	}
	for i, dev := range devices {
		if err := rt.AttachDevice(dev, sourcePorts[i], calibrations[i]); err != nil {
			// release what came up, newest first, before surfacing
			rt.Stop(ctx)
			p.Stop(ctx)
			release()
			return err
		}
	}

	k.mu.Lock()
	k.runtime = rt
	k.release = release
	k.mu.Unlock()
	return nil
}

// stopKernel tears down the active device readers and stops the attached
// pipeline, if any. Safe to call when no kernel has been started.
func (k *KernelBinding) stopKernel(ctx context.Context) error {
	k.mu.Lock()
	rt := k.runtime
	p := k.pipeline
	release := k.release
	k.runtime = nil
	k.release = nil
	k.mu.Unlock()

	if rt != nil {
		rt.Stop(ctx)
	}
	if release != nil {
		release()
	}
	if p != nil {
		state := p.State()
		if state == audiotab.PipelineRunning || state == audiotab.PipelinePaused {
			return p.Stop(ctx)
		}
	}
	return nil
}

// kernelStatusView is the JSON-safe snapshot returned by get_kernel_status.
type kernelStatusView struct {
	State           string   `json:"state"`
	ActiveDevices   int      `json:"active_device_count"`
	AttachedReaders []string `json:"attached_readers"`
}

func (k *KernelBinding) kernelStatus() kernelStatusView {
	k.mu.Lock()
	rt := k.runtime
	k.mu.Unlock()

	if rt == nil {
		return kernelStatusView{State: "stopped", AttachedReaders: []string{}}
	}
	state, n := rt.Status()
	return kernelStatusView{State: state.String(), ActiveDevices: n, AttachedReaders: rt.Readers()}
}

// pipelineStateView is the JSON-safe projection of one pipeline's status:
// its id, current state, optional operator label, and the failure message
// when the state is error.
type pipelineStateView struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Label string `json:"label,omitempty"`
	Error string `json:"error,omitempty"`
}

// allPipelineStates reports every pipeline this binding currently knows
// about. The engine runs at most one deployed pipeline at a time, so this
// returns zero or one entries; the plural command name leaves room for a
// future multi-pipeline binding.
func (k *KernelBinding) allPipelineStates() []pipelineStateView {
	k.mu.Lock()
	p := k.pipeline
	k.mu.Unlock()
	if p == nil {
		return []pipelineStateView{}
	}
	errMsg, _ := p.ErrorInfo()
	if p.State() != audiotab.PipelineError {
		errMsg = ""
	}
	return []pipelineStateView{{ID: p.ID(), State: p.State().String(), Label: p.Label(), Error: errMsg}}
}

func (k *KernelBinding) controlPipeline(action string) error {
	k.mu.Lock()
	p := k.pipeline
	k.mu.Unlock()
	if p == nil {
		return audiotab.NewError("KernelBinding.controlPipeline", audiotab.ErrCodeInvalidConfig, "no pipeline deployed")
	}
	switch action {
	case "start":
		if p.State() == audiotab.PipelinePaused {
			return p.Resume()
		}
		return p.Start(context.Background(), nil)
	case "pause":
		return p.Pause()
	case "resume":
		return p.Resume()
	case "stop":
		return p.Stop(context.Background())
	default:
		return audiotab.NewError("KernelBinding.controlPipeline", audiotab.ErrCodeInvalidConfig, "unknown action: "+action)
	}
}

func (k *KernelBinding) triggerPipeline(ctx context.Context, nodeID string) error {
	k.mu.Lock()
	p := k.pipeline
	k.mu.Unlock()
	if p == nil {
		return audiotab.NewError("KernelBinding.triggerPipeline", audiotab.ErrCodeInvalidConfig, "no pipeline deployed")
	}
	return p.Trigger(ctx, nodeID)
}

// OpenRingBuffer (re)creates the visualization ring buffer at the
// binding's configured path; get_ringbuffer_bytes serves reads from it,
// the kernel's device readers publish into it, and a graph can target it
// through the viz_sink catalog node. Called once at daemon startup,
// before startKernel.
func (k *KernelBinding) OpenRingBuffer(sampleRate uint32, channels, capacity int) error {
	return k.openRingBuffer(sampleRate, channels, capacity)
}

// Ring returns the open visualization ring buffer, or nil if none has
// been created yet.
func (k *KernelBinding) Ring() *ringbuf.RingBuffer {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ring
}

func (k *KernelBinding) openRingBuffer(sampleRate uint32, channels, capacity int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ring != nil {
		k.ring.Close()
	}
	rb, err := ringbuf.Create(k.ringPath, sampleRate, channels, capacity)
	if err != nil {
		return err
	}
	k.ring = rb
	return nil
}

func (k *KernelBinding) ringChannel(ch, n int) ([]float64, error) {
	k.mu.Lock()
	rb := k.ring
	k.mu.Unlock()
	if rb == nil {
		return nil, audiotab.NewError("KernelBinding.ringChannel", audiotab.ErrCodeInvalidConfig, "ring buffer not open")
	}
	return rb.ReadChannel(ch, n), nil
}
