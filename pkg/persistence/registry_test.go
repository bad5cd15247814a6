package persistence

import (
	"testing"
)

func TestRegisterProvider(t *testing.T) {
	mockFactory := func(config PluginConfig) (PluginPersistence, error) {
		return nil, nil
	}

	RegisterProvider("test", mockFactory)

	found := false
	for _, p := range ListProviders() {
		if p == "test" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected to find 'test' provider in list, got: %v", ListProviders())
	}
}

func TestNewPersistenceDefaultsTimezone(t *testing.T) {
	var got PluginConfig
	RegisterProvider("tz-check", func(config PluginConfig) (PluginPersistence, error) {
		got = config
		return nil, nil
	})

	if _, err := NewPersistence(ProviderConfig{Type: "tz-check", Config: []byte(`{"a":1}`)}, PluginConfig{}); err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	if got.Timezone == nil {
		t.Fatal("expected timezone default")
	}
	if string(got.Config) != `{"a":1}` {
		t.Fatalf("provider config not forwarded: %s", got.Config)
	}
}

func TestNewPersistenceUnknownProvider(t *testing.T) {
	cfg := ProviderConfig{
		Type:   "unknown_provider",
		Config: []byte("{}"),
	}

	if _, err := NewPersistence(cfg, PluginConfig{}); err == nil {
		t.Error("Expected error for unknown provider, got nil")
	}
}
