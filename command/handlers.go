package command

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
)

func errResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Error: err.Error()}
}

func okResponse(id string, result any) Response {
	return Response{ID: id, OK: true, Result: result}
}

// handleDiscoverHardware runs discovery across every registered driver
// and returns the found devices' ids and owning driver names.
func (s *Server) handleDiscoverHardware(ctx context.Context, cmd Command) Response {
	if s.registry == nil {
		return errResponse(cmd.ID, audiotab.NewError("discover_hardware", audiotab.ErrCodeInvalidConfig, "no hardware registry configured"))
	}
	found := s.registry.DiscoverAll(ctx)

	type deviceInfo struct {
		DriverName string `json:"driver_name"`
		DeviceID   string `json:"device_id"`
		State      string `json:"state"`
	}
	out := make([]deviceInfo, 0, len(found))
	for _, d := range found {
		out = append(out, deviceInfo{
			DriverName: d.DriverName,
			DeviceID:   d.Device.ID(),
			State:      d.Device.State().String(),
		})
	}
	return okResponse(cmd.ID, out)
}

// calibrationFor looks up the persisted hardware registration whose
// DeviceID matches a discovered device's id and returns its calibration,
// or the identity (zero-value) Calibration if no store is configured or
// no registration matches.
func (s *Server) calibrationFor(deviceID string) audiotab.Calibration {
	if s.store == nil {
		return audiotab.Calibration{}
	}
	for _, rec := range s.store.List() {
		if rec.DeviceID == deviceID {
			return rec.Calibration
		}
	}
	return audiotab.Calibration{}
}

type startKernelArgs struct {
	PipelineID  string   `json:"pipeline_id"`
	DeviceIDs   []string `json:"device_ids"`
	SourcePorts []string `json:"source_ports"`
}

// handleStartKernel attaches the named discovered devices to the deployed
// pipeline's source ports and begins streaming.
func (s *Server) handleStartKernel(ctx context.Context, cmd Command) Response {
	var args startKernelArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("start_kernel", err))
	}
	if len(args.DeviceIDs) != len(args.SourcePorts) {
		return errResponse(cmd.ID, audiotab.NewError("start_kernel", audiotab.ErrCodeInvalidConfig, "device_ids and source_ports must be the same length"))
	}

	found := s.registry.DiscoverAll(ctx)
	sources := make([]hal.PacketSource, 0, len(args.DeviceIDs))
	calibrations := make([]audiotab.Calibration, 0, len(args.DeviceIDs))
	for _, id := range args.DeviceIDs {
		dev, err := hal.ByID(found, id)
		if err != nil {
			return errResponse(cmd.ID, err)
		}
		src, ok := dev.(hal.PacketSource)
		if !ok {
			return errResponse(cmd.ID, audiotab.NewError("start_kernel", audiotab.ErrCodeInvalidConfig, "device "+id+" is not a packet source"))
		}
		sources = append(sources, src)
		calibrations = append(calibrations, s.calibrationFor(id))
	}

	if err := s.kernel.startKernel(ctx, sources, args.SourcePorts, calibrations); err != nil {
		return errResponse(cmd.ID, err)
	}
	s.broadcastPipelineStates()
	return okResponse(cmd.ID, map[string]string{"status": "running"})
}

type deployGraphArgs struct {
	PipelineID string              `json:"pipeline_id"`
	Graph      jsoniter.RawMessage `json:"graph"`
}

// handleDeployGraph parses and validates a graph document and swaps it in
// as the engine's active pipeline, stopping any previous one first.
func (s *Server) handleDeployGraph(ctx context.Context, cmd Command) Response {
	var args deployGraphArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("deploy_graph", err))
	}
	if err := s.kernel.deployGraph(ctx, args.PipelineID, args.Graph, s.catalog); err != nil {
		return errResponse(cmd.ID, err)
	}
	s.broadcastPipelineStates()
	return okResponse(cmd.ID, map[string]string{"pipeline_id": args.PipelineID, "status": "deployed"})
}

type controlPipelineArgs struct {
	Action string `json:"action"`
}

// handleControlPipeline applies pause/resume/stop to the active pipeline.
func (s *Server) handleControlPipeline(ctx context.Context, cmd Command) Response {
	var args controlPipelineArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("control_pipeline", err))
	}
	if err := s.kernel.controlPipeline(args.Action); err != nil {
		return errResponse(cmd.ID, err)
	}
	s.broadcastPipelineStates()
	return okResponse(cmd.ID, map[string]string{"action": args.Action})
}

type triggerPipelineArgs struct {
	NodeID string `json:"node_id"`
}

// handleTriggerPipeline manually advances a named source node by one
// Generate call, used to drive pipelines with no attached hardware.
func (s *Server) handleTriggerPipeline(ctx context.Context, cmd Command) Response {
	var args triggerPipelineArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("trigger_pipeline", err))
	}
	if err := s.kernel.triggerPipeline(ctx, args.NodeID); err != nil {
		return errResponse(cmd.ID, err)
	}
	return okResponse(cmd.ID, map[string]string{"node_id": args.NodeID})
}

// handleStopKernel tears down the active kernel runtime and, if still
// running or paused, the attached pipeline.
func (s *Server) handleStopKernel(ctx context.Context, cmd Command) Response {
	if err := s.kernel.stopKernel(ctx); err != nil {
		return errResponse(cmd.ID, err)
	}
	s.broadcastPipelineStates()
	return okResponse(cmd.ID, map[string]string{"status": "stopped"})
}

// handleGetKernelStatus reports the kernel runtime's lifecycle state and
// active device reader count.
func (s *Server) handleGetKernelStatus(cmd Command) Response {
	return okResponse(cmd.ID, s.kernel.kernelStatus())
}

// handleGetAllPipelineStates reports the {id, state, error?}-shaped status
// of every pipeline the engine currently knows about.
func (s *Server) handleGetAllPipelineStates(cmd Command) Response {
	return okResponse(cmd.ID, s.kernel.allPipelineStates())
}

type registerDeviceArgs struct {
	hal.HardwareRecord
}

// handleRegisterDevice persists a new hardware registration, rejecting a
// duplicate user_name.
func (s *Server) handleRegisterDevice(cmd Command) Response {
	if s.store == nil {
		return errResponse(cmd.ID, audiotab.NewError("register_device", audiotab.ErrCodeInvalidConfig, "no hardware store configured"))
	}
	var args registerDeviceArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("register_device", err))
	}
	rec, err := s.store.AddRecord(args.HardwareRecord)
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	return okResponse(cmd.ID, rec)
}

type recordIDArgs struct {
	ID string `json:"id"`
}

// handleGetRegisteredDevice looks up one persisted hardware registration
// by id, or all of them if id is omitted.
func (s *Server) handleGetRegisteredDevice(cmd Command) Response {
	if s.store == nil {
		return errResponse(cmd.ID, audiotab.NewError("get_registered_device", audiotab.ErrCodeInvalidConfig, "no hardware store configured"))
	}
	var args recordIDArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("get_registered_device", err))
	}
	if args.ID == "" {
		return okResponse(cmd.ID, s.store.List())
	}
	rec, err := s.store.Get(args.ID)
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	return okResponse(cmd.ID, rec)
}

type updateDeviceArgs struct {
	ID     string             `json:"id"`
	Record hal.HardwareRecord `json:"record"`
}

// handleUpdateRegisteredDevice replaces a persisted registration's fields.
func (s *Server) handleUpdateRegisteredDevice(cmd Command) Response {
	if s.store == nil {
		return errResponse(cmd.ID, audiotab.NewError("update_registered_device", audiotab.ErrCodeInvalidConfig, "no hardware store configured"))
	}
	var args updateDeviceArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("update_registered_device", err))
	}
	rec, err := s.store.Update(args.ID, args.Record)
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	return okResponse(cmd.ID, rec)
}

// handleRemoveRegisteredDevice deletes a persisted hardware registration.
func (s *Server) handleRemoveRegisteredDevice(cmd Command) Response {
	if s.store == nil {
		return errResponse(cmd.ID, audiotab.NewError("remove_registered_device", audiotab.ErrCodeInvalidConfig, "no hardware store configured"))
	}
	var args recordIDArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("remove_registered_device", err))
	}
	if err := s.store.Remove(args.ID); err != nil {
		return errResponse(cmd.ID, err)
	}
	return okResponse(cmd.ID, map[string]string{"id": args.ID})
}

// handleCreateHardwareDevice instantiates a live hal.Device from a
// persisted registration via the server's HardwareDeviceFactory. The
// created device is not added to the registry's discovery results (those
// come from each Driver's own Discover); it is returned so the caller can
// pass its id straight to start_kernel if the driver also reports it.
func (s *Server) handleCreateHardwareDevice(cmd Command) Response {
	if s.store == nil || s.factory == nil {
		return errResponse(cmd.ID, audiotab.NewError("create_hardware_device", audiotab.ErrCodeInvalidConfig, "no hardware store/factory configured"))
	}
	var args recordIDArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("create_hardware_device", err))
	}
	rec, err := s.store.Get(args.ID)
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	dev, err := s.factory(rec)
	if err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("create_hardware_device", err))
	}
	return okResponse(cmd.ID, map[string]string{"device_id": dev.ID(), "state": dev.State().String()})
}

// nodeTypeView is the JSON-safe projection of audiotab.NodeTypeInfo: the
// catalog entry carries a factory func, which json.Marshal cannot encode.
type nodeTypeView struct {
	ID     string                 `json:"id"`
	Label  string                 `json:"label"`
	Params []audiotab.ParamSchema `json:"params"`
}

// handleGetNodeCatalog lists every registered node type and its param
// schema, letting a UI build a node palette without hardcoding types.
func (s *Server) handleGetNodeCatalog(cmd Command) Response {
	types := s.catalog.List()
	out := make([]nodeTypeView, 0, len(types))
	for _, t := range types {
		out = append(out, nodeTypeView{ID: t.ID, Label: t.Label, Params: t.Params})
	}
	return okResponse(cmd.ID, out)
}

type getRingBufferBytesArgs struct {
	Channel int `json:"channel"`
	Count   int `json:"count"`
}

// handleGetRingBufferBytes reads the last Count samples of Channel from
// the visualization ring buffer and pushes them back as a binary frame
// rather than JSON, avoiding base64 inflation for waveform data.
func (s *Server) handleGetRingBufferBytes(client *Client, cmd Command) Response {
	var args getRingBufferBytesArgs
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(cmd.Args, &args); err != nil {
		return errResponse(cmd.ID, audiotab.WrapError("get_ringbuffer_bytes", err))
	}
	samples, err := s.kernel.ringChannel(args.Channel, args.Count)
	if err != nil {
		return errResponse(cmd.ID, err)
	}
	client.send <- encodeSamplesFrame(args.Channel, samples)
	return okResponse(cmd.ID, map[string]int{"channel": args.Channel, "count": len(samples)})
}
