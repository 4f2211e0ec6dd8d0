package nodes

import (
	"context"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/audiotab-dev/audiotab"
)

// DebugSink dumps every Frame it receives via spew, useful for inspecting
// a graph's intermediate state while authoring it. It terminates the
// branch it sits on (Process returns nil, nil).
type DebugSink struct {
	audiotab.BaseNode

	out   io.Writer
	label string
}

// NewDebugSink returns a DebugSink writing to stderr.
func NewDebugSink() audiotab.Node {
	return &DebugSink{out: os.Stderr}
}

func (d *DebugSink) OnCreate(ctx context.Context, params map[string]any) error {
	d.label = stringParam(params, "label", "debug")
	return nil
}

func (d *DebugSink) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	spew.Fdump(d.out, struct {
		Label string
		Frame *audiotab.Frame
	}{d.label, in})
	return nil, nil
}
