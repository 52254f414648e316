package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/armon/go-radix"
)

// A Factory constructs an unopened backend of one type.
type Factory func() Backend

// Registry maps provider type names to factories. Type names are dotted, like
// "hexcore.provider.file", so that a prefix lists a family of types.
type Registry struct {
	lock      sync.RWMutex
	factories *radix.Tree
}

func NewRegistry() *Registry {
	return &Registry{factories: radix.New()}
}

// DefaultRegistry holds the built-in backends.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(TypeMemory, func() Backend { return NewMemory("", nil) })
	DefaultRegistry.Register(TypeFile, func() Backend { return NewFile("", false) })
	DefaultRegistry.Register(TypeDisk, func() Backend { return NewDisk("") })
	DefaultRegistry.Register(TypeView, func() Backend { return &View{} })
	DefaultRegistry.Register(TypeIntelHex, func() Backend { return NewIntelHex("") })
	DefaultRegistry.Register(TypeMotorolaSrec, func() Backend { return NewSrec("") })
	DefaultRegistry.Register(TypeSsh, func() Backend { return NewSsh(nil, SshEndpt{}, "") })
}

// Register adds or replaces the factory for typeName.
func (r *Registry) Register(typeName string, f Factory) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.factories.Insert(typeName, f)
}

func (r *Registry) Unregister(typeName string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.factories.Delete(typeName)
}

// New constructs an unopened backend of the given type.
func (r *Registry) New(typeName string) (Backend, error) {
	r.lock.RLock()
	v, ok := r.factories.Get(typeName)
	r.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownType, typeName)
	}
	return v.(Factory)(), nil
}

// List returns the registered type names starting with prefix, sorted.
func (r *Registry) List(prefix string) []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var names []string
	r.factories.WalkPrefix(prefix, func(s string, v interface{}) bool {
		names = append(names, s)
		return false
	})
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.factories.Len()
}

// Config is what is needed to recreate a provider: its type, its placement in the address space
// and its backend's own settings.
type Config struct {
	Type        string          `json:"type"`
	ID          uint64          `json:"id"`
	BaseAddress uint64          `json:"base_address"`
	CurrentPage uint64          `json:"current_page"`
	Backend     json.RawMessage `json:"backend,omitempty"`
}

// Config returns the settings needed to recreate p.
func (p *Provider) Config() (Config, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	c := Config{
		Type:        p.backend.TypeName(),
		ID:          p.id,
		BaseAddress: p.baseAddress,
		CurrentPage: p.currentPage,
	}
	if cf, ok := p.backend.(Configurable); ok {
		b, err := cf.MarshalConfig()
		if err != nil {
			return c, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, p.backend.Name(), err)
		}
		c.Backend = b
	}
	return c, nil
}

// FromConfig builds an unopened provider from c. resolve, if not nil, maps the ids of providers
// recorded in configs to live providers, for backends that refer to others.
func (r *Registry) FromConfig(c Config, opts Options, resolve func(id uint64) (*Provider, bool)) (*Provider, error) {
	b, err := r.New(c.Type)
	if err != nil {
		return nil, err
	}

	if len(c.Backend) > 0 {
		cf, ok := b.(Configurable)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes no settings", ErrInvalidConfig, c.Type)
		}
		if err = cf.UnmarshalConfig(c.Backend); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, c.Type, err)
		}
	}
	if rs, ok := b.(Resolver); ok && resolve != nil {
		rs.SetResolver(resolve)
	}

	p := New(b, opts)
	p.baseAddress = c.BaseAddress
	p.currentPage = c.CurrentPage
	return p, nil
}
