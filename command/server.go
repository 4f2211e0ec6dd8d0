// Package command implements the engine's external RPC surface: a
// websocket server accepting JSON commands (discover_hardware,
// start_kernel, deploy_graph, control_pipeline, trigger_pipeline,
// get_node_catalog, get_ringbuffer_bytes) and pushing back JSON responses
// or raw binary frames.
package command

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
	"github.com/audiotab-dev/audiotab/internal/logging"
)

// HardwareDeviceFactory instantiates a live hal.Device from a persisted
// HardwareRecord, used by handleCreateHardwareDevice to turn a
// registration into something the kernel can actually attach. Supplied by
// the process wiring up the Server (cmd/audiotabd), since only it knows
// which concrete Driver implementations are available.
type HardwareDeviceFactory func(rec hal.HardwareRecord) (hal.Device, error)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
}

// Command is one inbound JSON message: an operation name and its
// free-form JSON args.
type Command struct {
	Op   string              `json:"op"`
	ID   string              `json:"id,omitempty"`
	Args jsoniter.RawMessage `json:"args,omitempty"`
}

// Response is the JSON envelope sent back for a Command.
type Response struct {
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Client is one connected websocket peer: its connection and an outbound
// queue drained by a dedicated writer goroutine, so a slow reader never
// blocks the handler processing other clients' commands.
type Client struct {
	conn *websocket.Conn
	send chan any
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan any, 32)}
}

func (c *Client) writePump() {
	for msg := range c.send {
		switch m := msg.(type) {
		case []byte:
			c.conn.WriteMessage(websocket.BinaryMessage, m)
		default:
			c.conn.WriteJSON(m)
		}
	}
}

// Server hosts the command websocket endpoint and the Kernel state the
// commands operate on.
type Server struct {
	mu       sync.RWMutex
	logger   *logging.Logger
	kernel   *KernelBinding
	catalog  *audiotab.Catalog
	registry *hal.Registry
	store    *hal.HardwareStore
	factory  HardwareDeviceFactory

	clients map[*Client]bool
	clmu    sync.Mutex
}

// SetHardwareStore attaches persisted hardware-registration CRUD to the
// server; without one, register/get/update/remove_registered_device fail
// with InvalidConfig. Not passed to NewServer directly since it is
// optional and cmd/audiotabd opens the store after the registry/catalog
// are already built.
func (s *Server) SetHardwareStore(store *hal.HardwareStore, factory HardwareDeviceFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
	s.factory = factory
}

// NewServer builds a command Server wired to the given catalog, hardware
// registry, and kernel binding.
func NewServer(catalog *audiotab.Catalog, registry *hal.Registry, kernel *KernelBinding, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		logger:   logger,
		catalog:  catalog,
		registry: registry,
		kernel:   kernel,
		clients:  make(map[*Client]bool),
	}
}

// ServeHTTP upgrades the connection and runs the read loop until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn)
	s.clmu.Lock()
	s.clients[client] = true
	s.clmu.Unlock()

	go client.writePump()
	defer func() {
		s.clmu.Lock()
		delete(s.clients, client)
		s.clmu.Unlock()
		close(client.send)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &cmd); err != nil {
			client.send <- Response{OK: false, Error: "invalid command"}
			continue
		}
		client.send <- s.dispatch(r.Context(), client, cmd)
	}
}

// Broadcast pushes msg to every connected client, used for pipeline event
// fan-out.
func (s *Server) Broadcast(msg any) {
	s.clmu.Lock()
	defer s.clmu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, cmd Command) Response {
	switch cmd.Op {
	case "discover_hardware":
		return s.handleDiscoverHardware(ctx, cmd)
	case "start_kernel":
		return s.handleStartKernel(ctx, cmd)
	case "deploy_graph":
		return s.handleDeployGraph(ctx, cmd)
	case "control_pipeline":
		return s.handleControlPipeline(ctx, cmd)
	case "trigger_pipeline":
		return s.handleTriggerPipeline(ctx, cmd)
	case "get_node_catalog":
		return s.handleGetNodeCatalog(cmd)
	case "get_ringbuffer_bytes":
		return s.handleGetRingBufferBytes(client, cmd)
	case "stop_kernel":
		return s.handleStopKernel(ctx, cmd)
	case "get_kernel_status":
		return s.handleGetKernelStatus(cmd)
	case "get_all_pipeline_states":
		return s.handleGetAllPipelineStates(cmd)
	case "create_hardware_device":
		return s.handleCreateHardwareDevice(cmd)
	case "register_device":
		return s.handleRegisterDevice(cmd)
	case "get_registered_device":
		return s.handleGetRegisteredDevice(cmd)
	case "update_registered_device":
		return s.handleUpdateRegisteredDevice(cmd)
	case "remove_registered_device":
		return s.handleRemoveRegisteredDevice(cmd)
	default:
		return Response{ID: cmd.ID, OK: false, Error: "unknown op: " + cmd.Op}
	}
}
