package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig selects a producer auth provider and carries its raw settings.
type ProviderConfig struct {
	Type   string
	Config json.RawMessage
}

// Factory builds a Validator from a provider's raw settings.
type Factory func(raw json.RawMessage) (Validator, error)

var ErrUnknownProvider = errors.New("unknown producer auth provider")

var providers = struct {
	sync.RWMutex
	m map[string]Factory
}{m: map[string]Factory{}}

// Register makes a provider available under a case-insensitive name.
// Registering a name twice or a nil factory panics.
func Register(name string, f Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || f == nil {
		panic("auth: Register needs a name and a factory")
	}
	providers.Lock()
	defer providers.Unlock()
	if _, dup := providers.m[key]; dup {
		panic("auth: provider " + key + " registered twice")
	}
	providers.m[key] = f
}

// NewValidator builds the validator for pc.Type.
func NewValidator(pc ProviderConfig) (Validator, error) {
	key := strings.ToLower(strings.TrimSpace(pc.Type))
	providers.RLock()
	f, ok := providers.m[key]
	providers.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownProvider, pc.Type, strings.Join(Providers(), ", "))
	}
	v, err := f(pc.Config)
	if err != nil {
		return nil, fmt.Errorf("producer auth %s: %w", key, err)
	}
	return v, nil
}

// Providers lists registered provider names in order.
func Providers() []string {
	providers.RLock()
	defer providers.RUnlock()
	names := make([]string, 0, len(providers.m))
	for name := range providers.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
