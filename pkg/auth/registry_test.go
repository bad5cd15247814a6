package auth

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
)

type roleValidator struct{ role string }

func (v roleValidator) Validate(token string) (*Claims, error) {
	if token != "producer-token" {
		return nil, errors.New("invalid token")
	}
	return &Claims{Subject: "ingest", Raw: map[string]interface{}{"role": v.role}}, nil
}

var registerOnce sync.Once

func registerTestProviders() {
	registerOnce.Do(func() {
		Register("Role", func(raw json.RawMessage) (Validator, error) {
			var cfg struct {
				Role string `json:"role"`
			}
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, err
			}
			return roleValidator{role: cfg.Role}, nil
		})
	})
}

func TestNewValidatorBuildsRegisteredProvider(t *testing.T) {
	registerTestProviders()

	v, err := NewValidator(ProviderConfig{Type: " ROLE ", Config: json.RawMessage(`{"role":"producer"}`)})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	claims, err := v.Validate("producer-token")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Role() != "PRODUCER" {
		t.Errorf("role = %q", claims.Role())
	}
	if _, err := v.Validate("other"); err == nil {
		t.Error("expected rejection of unknown token")
	}
	if !slices.Contains(Providers(), "role") {
		t.Errorf("Providers() = %v", Providers())
	}
}

func TestNewValidatorErrors(t *testing.T) {
	registerTestProviders()

	_, err := NewValidator(ProviderConfig{Type: "saml"})
	if !errors.Is(err, ErrUnknownProvider) || !strings.Contains(err.Error(), "role") {
		t.Fatalf("unknown provider err = %v", err)
	}

	_, err = NewValidator(ProviderConfig{Type: "role", Config: json.RawMessage(`[`)})
	if err == nil || !strings.Contains(err.Error(), "producer auth role") {
		t.Fatalf("bad config err = %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registerTestProviders()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate provider")
		}
	}()
	Register("role", func(json.RawMessage) (Validator, error) { return roleValidator{}, nil })
}
