package broker

import (
	"fmt"
	"sort"
	"sync"
)

// ConnectConfig carries the gateway connection parameters.
type ConnectConfig struct {
	Host     string
	Port     int
	ClientID int
}

// Factory builds an unconnected Gateway from connection parameters.
type Factory func(ConnectConfig) (Gateway, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a gateway implementation available under a provider name.
// Vendor adapters register themselves in their package init; the in-tree mock
// is always available. Registering the same name twice panics.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("broker: provider %q registered twice", name))
	}
	factories[name] = factory
}

// New builds a gateway for the named provider.
func New(name string, cfg ConnectConfig) (Gateway, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("broker: unknown provider %q (available: %v)", name, providerNames())
	}
	return factory(cfg)
}

func providerNames() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("mock", func(ConnectConfig) (Gateway, error) {
		return NewMockGateway(), nil
	})
}
