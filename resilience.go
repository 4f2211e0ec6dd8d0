package audiotab

import (
	"context"
	"time"
)

// ErrorPolicy selects how a ResilienceWrapper reacts when a wrapped Node's
// Process call returns an error.
type ErrorPolicy int

const (
	// PolicyPropagate surfaces the error to the caller unchanged.
	PolicyPropagate ErrorPolicy = iota
	// PolicySkipFrame drops the input Frame and returns (nil, nil),
	// letting the pipeline continue with the next Frame.
	PolicySkipFrame
	// PolicyUseDefault returns a caller-supplied default Frame in place
	// of the failed Process call's output.
	PolicyUseDefault
)

// parseErrorPolicy maps a graph document's error_policy string to an
// ErrorPolicy, defaulting to PolicyPropagate for "" or an unrecognized
// value, so a node that never declared a policy fails loudly rather than
// silently dropping frames.
func parseErrorPolicy(s string) ErrorPolicy {
	switch s {
	case "SkipFrame":
		return PolicySkipFrame
	case "UseDefault":
		return PolicyUseDefault
	default:
		return PolicyPropagate
	}
}

// RestartStrategy optionally re-invokes OnCreate on a node after a failure,
// bounded by MaxRestarts within Window.
type RestartStrategy struct {
	MaxRestarts int
	Window      time.Duration
}

// ResilienceWrapper wraps a Node with timing instrumentation and an error
// policy, following the same pre/post-hook shape as the engine's Observer
// pattern: time the call, record the outcome, then apply the policy.
type ResilienceWrapper struct {
	node     Node
	nodeID   string
	policy   ErrorPolicy
	observer Observer
	restart  *RestartStrategy
	timeout  time.Duration

	defaultFrame *Frame
	restarts     []time.Time
}

// ResilienceOptions configures a ResilienceWrapper.
type ResilienceOptions struct {
	Policy       ErrorPolicy
	Observer     Observer
	Restart      *RestartStrategy
	DefaultFrame *Frame

	// ProcessTimeout, when positive, bounds each wrapped Process call
	// with a context deadline. Zero (the default) applies no timeout: a
	// stalled node stalls its branch, and the operator stops the
	// pipeline. Nodes must honor ctx cancellation for this to bite.
	ProcessTimeout time.Duration
}

// NewResilienceWrapper wraps node under nodeID with the given options.
func NewResilienceWrapper(node Node, nodeID string, opts ResilienceOptions) *ResilienceWrapper {
	obs := opts.Observer
	if obs == nil {
		obs = NoOpObserver{}
	}
	return &ResilienceWrapper{
		node:         node,
		nodeID:       nodeID,
		policy:       opts.Policy,
		observer:     obs,
		restart:      opts.Restart,
		timeout:      opts.ProcessTimeout,
		defaultFrame: opts.DefaultFrame,
	}
}

// Process times the wrapped node's Process call, records the observation,
// and applies the configured ErrorPolicy on failure.
func (w *ResilienceWrapper) Process(ctx context.Context, in *Frame) (*Frame, error) {
	callCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := w.node.Process(callCtx, in)
	latencyUs := uint64(time.Since(start).Microseconds())
	w.observer.ObserveFrame(latencyUs, err == nil)

	if err == nil {
		return out, nil
	}

	if w.shouldRestart() {
		if restartErr := w.node.OnCreate(ctx, nil); restartErr == nil {
			w.restarts = append(w.restarts, time.Now())
		}
	}

	switch w.policy {
	case PolicySkipFrame:
		return nil, nil
	case PolicyUseDefault:
		if w.defaultFrame != nil {
			return w.defaultFrame, nil
		}
		if in != nil {
			return NewFrame(in.TimestampUs, in.SequenceID), nil
		}
		return NewFrame(0, 0), nil
	default:
		return nil, WrapError("ResilienceWrapper.Process", NewNodeError("Process", "", w.nodeID, ErrCodeNodeFailure, err.Error()))
	}
}

func (w *ResilienceWrapper) shouldRestart() bool {
	if w.restart == nil {
		return false
	}
	cutoff := time.Now().Add(-w.restart.Window)
	kept := w.restarts[:0]
	for _, t := range w.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.restarts = kept
	return len(w.restarts) < w.restart.MaxRestarts
}

var _ Node = (*resilienceNodeAdapter)(nil)

// resilienceNodeAdapter lets ResilienceWrapper satisfy Node so it can be
// plugged back into the pipeline in place of the node it wraps.
type resilienceNodeAdapter struct {
	*ResilienceWrapper
}

func (a *resilienceNodeAdapter) OnCreate(ctx context.Context, params map[string]any) error {
	return a.node.OnCreate(ctx, params)
}

func (a *resilienceNodeAdapter) OnDestroy(ctx context.Context) error {
	return a.node.OnDestroy(ctx)
}

// AsNode returns a Node view of the wrapper for direct pipeline wiring.
func (w *ResilienceWrapper) AsNode() Node {
	return &resilienceNodeAdapter{w}
}
