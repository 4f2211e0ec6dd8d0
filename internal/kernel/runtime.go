// Package kernel owns the set of active Devices and pumps their Packet
// output into a running Pipeline's source ports, converting device-native
// Packets to Frames via a Converter.
package kernel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
	"github.com/audiotab-dev/audiotab/internal/logging"
	"github.com/audiotab-dev/audiotab/internal/ringbuf"
)

// State enumerates the Kernel Runtime's own lifecycle, distinct from any
// Pipeline's state: Idle before any device has been attached, Initializing
// while devices are being opened and started, Running once at least one
// reader is pumping frames, Error if every attach attempt failed, and
// Stopped once shutdown has completed.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runtime owns the devices feeding one Pipeline and the reader goroutines
// pumping their output into it. Shutdown is sync.Once-guarded so repeated
// or concurrent Stop calls are safe.
type Runtime struct {
	mu       sync.Mutex
	pipeline *audiotab.Pipeline
	readers  map[string]*reader
	ring     *ringbuf.RingBuffer
	logger   *logging.Logger
	state    State
	attempts int
	failures int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRuntime wraps a started Pipeline with device-feeding capability. ctx
// bounds the lifetime of every reader goroutine the runtime spawns.
func NewRuntime(ctx context.Context, pipeline *audiotab.Pipeline, logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.Default()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Runtime{
		pipeline: pipeline,
		readers:  make(map[string]*reader),
		logger:   logger,
		state:    StateIdle,
		ctx:      runCtx,
		cancel:   cancel,
	}
}

// Status reports the runtime's current lifecycle state and the number of
// actively-pumping device readers.
func (r *Runtime) Status() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, len(r.readers)
}

// SetRing attaches the visualization ring buffer; every reader spawned
// after this call publishes its converted Frames into it alongside the
// pipeline push. Call before AttachDevice.
func (r *Runtime) SetRing(ring *ringbuf.RingBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = ring
}

// AttachDevice opens and starts dev, then spawns a reader task pumping its
// Packets into the pipeline's sourcePort node, converting each Packet to a
// Frame with positionally-named channels ("ch0".."chN-1") and correcting
// it with calibration ahead of anything downstream. A failure here is
// isolated to this one device: the registered-hardware entry is
// considered unavailable but the runtime only escalates to StateError once
// every attach attempt has failed (see AllAttemptsFailed).
func (r *Runtime) AttachDevice(dev hal.PacketSource, sourcePort string, calibration audiotab.Calibration) error {
	r.mu.Lock()
	r.state = StateInitializing
	r.attempts++
	r.mu.Unlock()

	if err := dev.Open(r.ctx); err != nil {
		r.recordFailure()
		return audiotab.WrapError("kernel.AttachDevice", err)
	}
	if err := dev.Start(r.ctx); err != nil {
		r.recordFailure()
		return audiotab.WrapError("kernel.AttachDevice", err)
	}

	r.mu.Lock()
	rd := &reader{
		device:      dev,
		sourcePort:  sourcePort,
		pipeline:    r.pipeline,
		ring:        r.ring,
		converter:   audiotab.NewConverter(),
		calibration: calibration,
		logger:      r.logger.WithNode(sourcePort),
	}
	r.readers[dev.ID()] = rd
	r.state = StateRunning
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rd.run(r.ctx)
	}()
	return nil
}

// recordFailure bumps the failure count and, if every attach attempted so
// far has failed, moves the runtime to StateError — the "all registered
// devices failed" escalation the kernel's startup sequence applies.
func (r *Runtime) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if r.failures == r.attempts && len(r.readers) == 0 {
		r.state = StateError
	}
}

// Readers returns the device ids currently being pumped.
func (r *Runtime) Readers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.readers))
	for id := range r.readers {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every reader and waits for them to exit (or until ctx is
// cancelled first), then stops each attached device so its backend
// resources are released. Device stops are best-effort: a failure is
// logged and the teardown continues. The device set is cleared, so
// Status reports zero active readers afterwards. Safe to call more than
// once; only the first call has any effect. The device set lock is not
// held across the device Stop calls.
func (r *Runtime) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		r.cancel()
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}

		r.mu.Lock()
		readers := make([]*reader, 0, len(r.readers))
		for _, rd := range r.readers {
			readers = append(readers, rd)
		}
		r.readers = make(map[string]*reader)
		r.mu.Unlock()

		for _, rd := range readers {
			if err := rd.device.Stop(ctx); err != nil {
				r.logger.Warn("device stop failed", "device", rd.device.ID(), "error", err)
			}
		}

		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
	})
}

// sequenceCounter is a tiny atomic helper giving each reader its own
// monotonically increasing Frame sequence id independent of other readers
// feeding the same pipeline.
type sequenceCounter struct {
	v atomic.Uint64
}

func (c *sequenceCounter) next() uint64 {
	return c.v.Add(1)
}
