package kernel

import (
	"context"
	"runtime"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
	"github.com/audiotab-dev/audiotab/internal/logging"
	"github.com/audiotab-dev/audiotab/internal/ringbuf"
)

// reader pumps one Device's Packet stream into a Pipeline's source port,
// converting each Packet to a Frame. Each iteration blocks in the device's
// Read until a Packet arrives or the context ends; after a failed Read the
// reader yields before retrying instead of busy-spinning.
type reader struct {
	device      hal.PacketSource
	sourcePort  string
	pipeline    *audiotab.Pipeline
	ring        *ringbuf.RingBuffer
	converter   *audiotab.Converter
	calibration audiotab.Calibration
	logger      *logging.Logger
	seq         sequenceCounter
}

func (r *reader) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithCancel(ctx)
		p, err := r.device.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("device read failed", "error", err)
			runtime.Gosched()
			continue
		}

		frame, err := r.converter.ToFrame(p, r.seq.next())
		if err != nil {
			r.logger.Error("packet conversion failed", "error", err)
			continue
		}
		r.converter.ApplyCalibration(frame, r.calibration)

		if r.ring != nil {
			if err := r.ring.PublishFrame(frame); err != nil {
				r.logger.Debug("ring publish failed", "error", err)
			}
		}

		if err := r.pipeline.PushFrame(ctx, r.sourcePort, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("push to pipeline failed", "error", err)
		}
	}
}
