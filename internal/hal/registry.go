package hal

import (
	"context"
	"sync"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Registry is the hardware driver directory: every Driver a process
// recognizes is registered here, and DiscoverAll fans discovery out across
// all of them concurrently.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	logger  *logging.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{drivers: make(map[string]Driver), logger: logger}
}

// RegisterDriver adds a Driver under its own Name().
func (r *Registry) RegisterDriver(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// Drivers returns the registered driver names.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// DiscoveredDevice pairs a discovered Device with the driver name that
// found it.
type DiscoveredDevice struct {
	DriverName string
	Device     Device
}

// DiscoverAll runs Discover on every registered driver concurrently. A
// driver whose Discover call fails is logged and excluded from the result;
// discovery never aborts because of one bad driver. errgroup.Group is used
// purely as a WaitGroup convenience here (no concurrency limit is set: one
// goroutine per driver), not for its fail-fast cancellation: each goroutine swallows its own error before
// returning nil to the group.
func (r *Registry) DiscoverAll(ctx context.Context) []DiscoveredDevice {
	r.mu.RLock()
	drivers := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		drivers = append(drivers, d)
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	var found []DiscoveredDevice

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range drivers {
		d := d
		g.Go(func() error {
			devices, err := d.Discover(gctx)
			if err != nil {
				r.logger.Warn("driver discovery failed", "driver", d.Name(), "error", err)
				return nil
			}
			mu.Lock()
			for _, dev := range devices {
				found = append(found, DiscoveredDevice{DriverName: d.Name(), Device: dev})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return found
}

// Create instantiates a Device through the named driver's DeviceFactory.
// Drivers that only support discovery (no on-demand instantiation) yield
// a BackendFailure.
func (r *Registry) Create(driverName, deviceID string, cfg DeviceConfig) (Device, error) {
	r.mu.RLock()
	d, ok := r.drivers[driverName]
	r.mu.RUnlock()
	if !ok {
		return nil, audiotab.NewError("hal.Registry.Create", audiotab.ErrCodeNotFound, "no such driver: "+driverName)
	}
	factory, ok := d.(DeviceFactory)
	if !ok {
		return nil, audiotab.NewError("hal.Registry.Create", audiotab.ErrCodeBackendFailure,
			"driver "+driverName+" does not create devices on demand")
	}
	dev, err := factory.Create(deviceID, cfg)
	if err != nil {
		return nil, audiotab.WrapError("hal.Registry.Create", err)
	}
	return dev, nil
}

// ByID scans a discovery result for a device with the given id.
func ByID(devices []DiscoveredDevice, id string) (Device, error) {
	for _, d := range devices {
		if d.Device.ID() == id {
			return d.Device, nil
		}
	}
	return nil, audiotab.NewError("hal.ByID", audiotab.ErrCodeNotFound, "device not found: "+id)
}
