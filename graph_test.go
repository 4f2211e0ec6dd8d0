package audiotab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGraphConfig(t *testing.T) {
	doc := []byte(`{"nodes":[{"id":"a","type":"x"}],"edges":[]}`)
	cfg, err := ParseGraphConfig(doc)
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 1)
}

func TestParseGraphConfigAcceptsConnectionsAndEdgesKeys(t *testing.T) {
	viaConnections := []byte(`{"nodes":[{"id":"a","type":"x"},{"id":"b","type":"y"}],"connections":[{"from":"a","to":"b"}]}`)
	cfg, err := ParseGraphConfig(viaConnections)
	require.NoError(t, err)
	require.Len(t, cfg.Edges, 1)
	require.Equal(t, "a", cfg.Edges[0].From)

	viaEdges := []byte(`{"nodes":[{"id":"a","type":"x"},{"id":"b","type":"y"}],"edges":[{"from":"a","to":"b"}]}`)
	cfg, err = ParseGraphConfig(viaEdges)
	require.NoError(t, err)
	require.Len(t, cfg.Edges, 1)
}

func TestParseGraphConfigFoldsConfigAliasesIntoParams(t *testing.T) {
	doc := []byte(`{"nodes":[
		{"id":"a","type":"x","config":{"gain":2.0}},
		{"id":"b","type":"y","parameters":{"freq_hz":440.0}},
		{"id":"c","type":"z","params":{"taps_count":4}}
	]}`)
	cfg, err := ParseGraphConfig(doc)
	require.NoError(t, err)
	require.Equal(t, 2.0, cfg.Nodes[0].Params["gain"])
	require.Equal(t, 440.0, cfg.Nodes[1].Params["freq_hz"])
	require.Equal(t, float64(4), cfg.Nodes[2].Params["taps_count"])
}

func TestGraphConfigValidateDuplicateNode(t *testing.T) {
	cfg := &GraphConfig{Nodes: []GraphNodeConfig{{ID: "a", Type: "x"}, {ID: "a", Type: "y"}}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestGraphConfigValidateUnknownEdgeTarget(t *testing.T) {
	cfg := &GraphConfig{
		Nodes: []GraphNodeConfig{{ID: "a", Type: "x"}},
		Edges: []GraphEdgeConfig{{From: "a", To: "missing"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestGraphConfigTranslate(t *testing.T) {
	cfg := &GraphConfig{Nodes: []GraphNodeConfig{{ID: "a", Type: "SineWave"}}}
	cfg.Translate(UITypeTranslation{"SineWave": "audiotab.sine"})
	require.Equal(t, "audiotab.sine", cfg.Nodes[0].Type)
}

func TestGraphConfigTranslateDefaultsAndPassthrough(t *testing.T) {
	cfg := &GraphConfig{Nodes: []GraphNodeConfig{
		{ID: "a", Type: "SineGenerator"},
		{ID: "b", Type: "Gain"},
		{ID: "c", Type: "Print"},
		{ID: "d", Type: "SomethingNobodyRegistered"},
	}}
	cfg.Translate(DefaultUITranslation)

	require.Equal(t, "audiotab.sine", cfg.Nodes[0].Type)
	require.Equal(t, "audiotab.gain", cfg.Nodes[1].Type)
	require.Equal(t, "audiotab.debug_sink", cfg.Nodes[2].Type)
	// unknown names pass through so the builder can reject them
	require.Equal(t, "SomethingNobodyRegistered", cfg.Nodes[3].Type)

	require.Equal(t, DefaultChannelCapacity, cfg.PipelineConfig.ChannelCapacity)
	require.Equal(t, PriorityNormal, cfg.PipelineConfig.ResolvedPriority())
}
