package audiotab

import "context"

// Node is the capability interface every graph node type implements.
// OnCreate runs once after construction with the node's resolved
// parameters; Process runs once per input Frame (for a source node with no
// inbound port, once per Frame its Generate loop yields); OnDestroy runs once during pipeline
// teardown. A node that has no work to do in a given lifecycle stage may
// leave the corresponding method a no-op.
//
// Process must treat its input Frame as read-only: fan-out delivers the
// same Frame pointer to every downstream branch, so an in-place mutation
// races against sibling branches. A node that modifies samples clones the
// Frame first and returns the clone (see Frame.Clone; the gain node is
// the reference example).
type Node interface {
	OnCreate(ctx context.Context, params map[string]any) error
	Process(ctx context.Context, in *Frame) (*Frame, error)
	OnDestroy(ctx context.Context) error
}

// SourceNode is an optional capability for nodes with no inbound port: the
// runtime calls Generate repeatedly instead of routing inbound Frames
// through Process. A node may implement both Node and SourceNode; the
// runtime treats it as a source if no inbound edge targets it in the
// graph.
type SourceNode interface {
	Node
	Generate(ctx context.Context) (*Frame, error)
}

// BaseNode provides no-op OnCreate/OnDestroy so concrete node types only
// need to implement Process (or Generate).
type BaseNode struct{}

func (BaseNode) OnCreate(ctx context.Context, params map[string]any) error { return nil }
func (BaseNode) OnDestroy(ctx context.Context) error                       { return nil }
