package audiotab

import "sync"

// ParamSchema describes one accepted parameter for a node type: its name,
// expected kind, and whether the graph config must supply it. Kind is one
// of "float", "int", "string", "bool", "float_list"; Min/Max optionally bound a numeric
// parameter inclusively (nil means unbounded) and are checked by Validate
// before a node's OnCreate ever runs.
type ParamSchema struct {
	Name     string
	Kind     string
	Required bool
	Default  any
	Min      *float64
	Max      *float64
}

// Validate checks params against the node type's parameter schema: every
// Required parameter must be present, and any parameter with a Min/Max
// bound must fall within it. Parameters absent from the schema are passed
// through unchecked, matching the catalog's role as a coarse pre-filter,
// not a closed schema.
func (t NodeTypeInfo) Validate(params map[string]any) error {
	for _, schema := range t.Params {
		v, present := params[schema.Name]
		if !present {
			if schema.Required {
				return NewError("Catalog.Validate", ErrCodeInvalidConfig,
					"missing required parameter: "+schema.Name)
			}
			continue
		}
		if schema.Min == nil && schema.Max == nil {
			continue
		}
		f, ok := paramAsFloat(v)
		if !ok {
			continue
		}
		if schema.Min != nil && f < *schema.Min {
			return NewError("Catalog.Validate", ErrCodeInvalidConfig,
				schema.Name+" below minimum")
		}
		if schema.Max != nil && f > *schema.Max {
			return NewError("Catalog.Validate", ErrCodeInvalidConfig,
				schema.Name+" above maximum")
		}
	}
	return nil
}

func paramAsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// NodeTypeInfo self-describes one catalog-registered node type: its
// catalog id, a human label, the parameters it accepts, and a factory that
// produces a fresh Node instance per graph node.
type NodeTypeInfo struct {
	ID          string
	Label       string
	Params      []ParamSchema
	NewInstance func() Node
}

// Catalog is the compile-time directory of node types available to graph
// construction. Node types register themselves via Register,
// typically from an init() func in the nodes package.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]NodeTypeInfo
}

var defaultCatalog = NewCatalog()

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]NodeTypeInfo)}
}

// DefaultCatalog returns the process-wide catalog that node packages
// register themselves into via init().
func DefaultCatalog() *Catalog { return defaultCatalog }

// Register adds a node type to the catalog. It panics on a duplicate id
// since registration happens at init() time and a duplicate indicates a
// programming error, not a runtime condition.
func (c *Catalog) Register(info NodeTypeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[info.ID]; exists {
		panic("audiotab: duplicate node type registration: " + info.ID)
	}
	c.types[info.ID] = info
}

// Lookup returns the NodeTypeInfo for id, or false if unregistered.
func (c *Catalog) Lookup(id string) (NodeTypeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.types[id]
	return info, ok
}

// List returns all registered node types, in no particular order.
func (c *Catalog) List() []NodeTypeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeTypeInfo, 0, len(c.types))
	for _, info := range c.types {
		out = append(out, info)
	}
	return out
}

// New constructs a fresh Node for the given catalog id.
func (c *Catalog) New(id string) (Node, error) {
	info, ok := c.Lookup(id)
	if !ok {
		return nil, NewError("Catalog.New", ErrCodeUnknownNodeType, "unknown node type: "+id)
	}
	return info.NewInstance(), nil
}
