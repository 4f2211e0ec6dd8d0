package audiotab

import (
	jsoniter "github.com/json-iterator/go"
)

// GraphNodeConfig is one node entry in a graph document: a unique id, the
// catalog type id to instantiate, and the parameters passed to OnCreate.
type GraphNodeConfig struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`

	// Config is an accepted alias for Params, matching the runtime
	// document's per-node key; ParseGraphConfig folds it into Params.
	// The graph editor's export uses "parameters", also folded in.
	Config     map[string]any `json:"config,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// SourcePort marks a node as fed by an external producer (the kernel
	// runtime pumping Packets from a Device) rather than by a graph
	// edge or its own Generate call. Such a node gets an inbound
	// channel even though the graph declares no edge targeting it.
	SourcePort bool `json:"source_port,omitempty"`

	// ErrorPolicy selects the Resilience Wrapper's behavior on this
	// node's process failures: "Propagate" (default), "SkipFrame", or
	// "UseDefault". UseDefault without a DefaultFrame falls back to an
	// empty Frame.
	ErrorPolicy string `json:"error_policy,omitempty"`

	// DefaultFrame supplies the Frame emitted on failure when
	// ErrorPolicy is "UseDefault", keyed by channel name.
	DefaultFrame map[string][]float64 `json:"default_frame,omitempty"`
}

// GraphEdgeConfig connects one node's output to another node's input, with
// an optional channel mapping applied in transit.
type GraphEdgeConfig struct {
	From     string           `json:"from"`
	To       string           `json:"to"`
	Mappings []ChannelMapping `json:"mappings,omitempty"`
}

// DefaultChannelCapacity is pipeline_config.channel_capacity's default
// when the field is absent from a graph document.
const DefaultChannelCapacity = 100

// PipelineConfig is the graph document's `pipeline_config` object: the bounded
// channel capacity wired between every node, and the priority this
// pipeline instance is admitted under by a PriorityScheduler. Priority is
// a pointer so an absent field defaults to Normal without colliding with
// PriorityCritical's zero value.
type PipelineConfig struct {
	ChannelCapacity int       `json:"channel_capacity,omitempty"`
	Priority        *Priority `json:"priority,omitempty"`
}

// ResolvedPriority returns the configured priority, or PriorityNormal if
// none was set.
func (c PipelineConfig) ResolvedPriority() Priority {
	if c.Priority == nil {
		return PriorityNormal
	}
	return *c.Priority
}

// ResolvedChannelCapacity returns the configured capacity, or
// DefaultChannelCapacity if unset or non-positive.
func (c PipelineConfig) ResolvedChannelCapacity() int {
	if c.ChannelCapacity <= 0 {
		return DefaultChannelCapacity
	}
	return c.ChannelCapacity
}

// GraphConfig is the full JSON document describing a dataflow graph.
type GraphConfig struct {
	Nodes          []GraphNodeConfig
	Edges          []GraphEdgeConfig
	PipelineConfig PipelineConfig
}

// graphConfigWire is the on-the-wire shape. The runtime document names
// the edge list "connections"; "edges" is accepted as an alias since
// that is what the graph editor's export emits. Unknown keys outside
// this schema are ignored.
type graphConfigWire struct {
	Nodes          []GraphNodeConfig `json:"nodes"`
	Connections    []GraphEdgeConfig `json:"connections"`
	Edges          []GraphEdgeConfig `json:"edges"`
	PipelineConfig PipelineConfig    `json:"pipeline_config"`
}

// ParseGraphConfig decodes a JSON graph document.
func ParseGraphConfig(data []byte) (*GraphConfig, error) {
	var w graphConfigWire
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &w); err != nil {
		return nil, WrapError("ParseGraphConfig", err)
	}
	edges := w.Connections
	if len(edges) == 0 {
		edges = w.Edges
	}
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if len(n.Params) == 0 {
			if len(n.Config) > 0 {
				n.Params = n.Config
			} else if len(n.Parameters) > 0 {
				n.Params = n.Parameters
			}
		}
		n.Config, n.Parameters = nil, nil
	}
	return &GraphConfig{Nodes: w.Nodes, Edges: edges, PipelineConfig: w.PipelineConfig}, nil
}

// Validate checks structural invariants: unique node ids, edges referencing
// only declared nodes, and at most one inbound edge per node (a node with
// two producers writing into the same input port is rejected rather than
// silently picking one, per the engine's multiple-sources decision).
func (g *GraphConfig) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return NewError("GraphConfig.Validate", ErrCodeInvalidConfig, "node with empty id")
		}
		if seen[n.ID] {
			return NewError("GraphConfig.Validate", ErrCodeInvalidConfig, "duplicate node id: "+n.ID)
		}
		seen[n.ID] = true
	}

	inbound := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		if !seen[e.From] {
			return NewError("GraphConfig.Validate", ErrCodeInvalidConfig, "edge references unknown node: "+e.From)
		}
		if !seen[e.To] {
			return NewError("GraphConfig.Validate", ErrCodeInvalidConfig, "edge references unknown node: "+e.To)
		}
		inbound[e.To]++
		if inbound[e.To] > 1 {
			return NewPipelineError("GraphConfig.Validate", "", ErrCodeMultipleSources, "node "+e.To+" has more than one inbound edge")
		}
	}
	return nil
}

// UITypeTranslation maps a UI-facing node type name to the catalog id the
// engine actually registers, letting the graph editor use friendlier
// labels than the catalog's internal ids.
type UITypeTranslation map[string]string

// DefaultUITranslation is the name table applied to graph documents
// submitted by the graph editor, which labels nodes by their palette
// names rather than catalog ids. Names absent from the table pass
// through untouched, so the pipeline builder rejects a genuinely unknown
// type with UnknownNodeType instead of the translation layer guessing.
var DefaultUITranslation = UITypeTranslation{
	"SineGenerator": "audiotab.sine",
	"Gain":          "audiotab.gain",
	"Filter":        "audiotab.fir_filter",
	"FFT":           "audiotab.fft_magnitude",
	"Print":         "audiotab.debug_sink",
	"AudioSource":   "audiotab.source_port",
}

// Translate rewrites every node's Type field in place using the
// translation table; node types absent from the table are left untouched,
// so a UI type that happens to already match a catalog id still works. It
// also inserts the default pipeline_config {channel_capacity: 100,
// priority: Normal} when the incoming document didn't specify one, per
// the UI-to-runtime graph translation.
func (g *GraphConfig) Translate(t UITypeTranslation) {
	for i, n := range g.Nodes {
		if catalogID, ok := t[n.Type]; ok {
			g.Nodes[i].Type = catalogID
		}
	}
	if g.PipelineConfig.ChannelCapacity <= 0 {
		g.PipelineConfig.ChannelCapacity = DefaultChannelCapacity
	}
	if g.PipelineConfig.Priority == nil {
		normal := PriorityNormal
		g.PipelineConfig.Priority = &normal
	}
}
