package nodes

import "github.com/audiotab-dev/audiotab"

func schema(entries ...audiotab.ParamSchema) []audiotab.ParamSchema { return entries }

// init registers every built-in node type into the process-wide default
// catalog, the way a graph config authored against catalog ids like
// "audiotab.sine" expects to find them.
func init() {
	catalog := audiotab.DefaultCatalog()

	catalog.Register(audiotab.NodeTypeInfo{
		ID:    "audiotab.sine",
		Label: "Sine Wave",
		Params: schema(
			audiotab.ParamSchema{Name: "freq_hz", Kind: "float"},
			audiotab.ParamSchema{Name: "amplitude", Kind: "float"},
			audiotab.ParamSchema{Name: "sample_rate", Kind: "float"},
			audiotab.ParamSchema{Name: "block_size", Kind: "int"},
		),
		NewInstance: NewSineSource,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:          "audiotab.gain",
		Label:       "Gain",
		Params:      schema(audiotab.ParamSchema{Name: "factor", Kind: "float", Required: true}),
		NewInstance: NewGain,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:    "audiotab.fir_filter",
		Label: "FIR Filter",
		Params: schema(
			audiotab.ParamSchema{Name: "taps", Kind: "float_list"},
			audiotab.ParamSchema{Name: "taps_count", Kind: "int"},
		),
		NewInstance: NewFIRFilter,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:          "audiotab.fft_magnitude",
		Label:       "FFT Magnitude",
		NewInstance: NewFFTMagnitude,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:          "audiotab.debug_sink",
		Label:       "Debug Sink",
		Params:      schema(audiotab.ParamSchema{Name: "label", Kind: "string"}),
		NewInstance: NewDebugSink,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:          "audiotab.source_port",
		Label:       "Device Source Port",
		NewInstance: NewAudioSourcePort,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:          "audiotab.viz_sink",
		Label:       "Visualization Sink",
		NewInstance: NewVisualizationSinkNode,
	})

	catalog.Register(audiotab.NodeTypeInfo{
		ID:    "audiotab.audio_output",
		Label: "Audio Output",
		Params: schema(
			audiotab.ParamSchema{Name: "device_id", Kind: "string", Required: true},
			audiotab.ParamSchema{Name: "sample_rate", Kind: "float"},
			audiotab.ParamSchema{Name: "channels", Kind: "int"},
			audiotab.ParamSchema{Name: "format", Kind: "string"},
		),
		NewInstance: NewAudioOutputNode,
	})
}
